package main

import (
	"log"

	approuters "Amoura/internal/app_routers"
	"Amoura/internal/configuration"
)

func main() {
	container, err := configuration.BuildContainer()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	defer container.Close()

	approuters.StartServer(container)
}
