package main

import (
	"fmt"

	"github.com/medlink/notify-delivery-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
