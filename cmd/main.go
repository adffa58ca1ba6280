package main

import (
	"github.com/IsVohi/OrderFlow-sub000/internal/app"
	"github.com/IsVohi/OrderFlow-sub000/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
