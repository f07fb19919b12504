// Command forecastctl runs the Escolta forecasting core from the command line.
//
// Series are read from a JSON or CSV file (--input) or from stdin, in any of
// the formats accepted by adapters.ReadSeries. Results are printed as JSON.
//
// Usage:
//
//	forecastctl forecast --input demand.csv --model prophet --horizon 12
//	forecastctl ensemble --input demand.json --models prophet,drift,arima
//	forecastctl backtest --input demand.csv --model arima
//	forecastctl regime < demand.json
//	forecastctl outliers --input demand.csv --iqr 2.5
//	forecastctl metrics --actual actual.json --forecast predicted.json
//	forecastctl current --server http://forecaster:8081 --series checkpoint-north
//	forecastctl generate --pattern shift-change --points 336 --noise 3
//
// Every flag can also be set through an ESCOLTA_ environment variable
// (ESCOLTA_HORIZON, ESCOLTA_SERVER, ...) or a YAML file passed with --config.
package main

import (
	"fmt"
	"os"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
