package methods

import (
	"encoding/hex"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm/clause"
)

// PointToWKB 观察点要素转WKB十六进制串，非点要素返回空串
func PointToWKB(geo geojson.Feature) string {
	point, ok := geo.Geometry.(orb.Point)
	if !ok {
		return ""
	}

	TempWkb, _ := wkb.Marshal(point)
	WkbHex := hex.EncodeToString(TempWkb)
	return WkbHex
}

// GeomFromWKBExpr WKB十六进制串解码为4326坐标系几何的SQL表达式
// wkb.Marshal不带SRID，写入geometry(Point,4326)列前必须ST_SetSRID
func GeomFromWKBExpr(wkbHex string) clause.Expr {
	return clause.Expr{
		SQL:  "ST_SetSRID(ST_GeomFromWKB(decode(?, 'hex')), 4326)",
		Vars: []interface{}{wkbHex},
	}
}
