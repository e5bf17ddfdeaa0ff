package config

import (
	"encoding/xml"
	"fmt"
	"os"
)

var MainRouter string
var DSN string
var Workspace string
var Dem string
var ObserverTable string
var Download string
var ViewshedBin string
var Dbname string
var MainConfig Config

type Config struct {
	XMLName       xml.Name `xml:"config"`
	MainRouter    string   `xml:"MainRouter"`
	Dbname        string   `xml:"dbname"`
	Host          string   `xml:"host"`
	Port          string   `xml:"port"`
	Username      string   `xml:"user"`
	Password      string   `xml:"password"`
	Workspace     string   `xml:"workspace"`
	Dem           string   `xml:"dem"`
	ObserverTable string   `xml:"ObserverTable"`
	Download      string   `xml:"download"`
	ViewshedBin   string   `xml:"ViewshedBin"`
}

func init() {

	xmlFile, err := os.Open("config.xml")
	if err != nil {
		fmt.Println("Error  opening  file:", err)
		return
	}
	defer xmlFile.Close()

	xmlDecoder := xml.NewDecoder(xmlFile)
	err = xmlDecoder.Decode(&MainConfig)
	if err != nil {
		fmt.Println("Error  decoding  XML:", err)
		return
	}
	MainRouter = MainConfig.MainRouter
	Workspace = MainConfig.Workspace
	Dem = MainConfig.Dem
	ObserverTable = MainConfig.ObserverTable
	Download = MainConfig.Download
	Dbname = MainConfig.Dbname
	ViewshedBin = MainConfig.ViewshedBin
	// 未配置时使用PATH中的gdal_viewshed
	if ViewshedBin == "" {
		ViewshedBin = "gdal_viewshed"
	}

	DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", MainConfig.Host, MainConfig.Username, MainConfig.Password, MainConfig.Dbname, MainConfig.Port)

}
