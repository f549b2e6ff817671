package main

import (
	"meli_sync_v1_202601/cmd/melisync/cmd"
)

func main() {
	cmd.Execute()
}
