package main

import "github.com/polarsignals/arrowpq/cmd/arrow2parquet/cmd"

func main() {
	cmd.Execute()
}
