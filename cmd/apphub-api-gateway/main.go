package main

import (
	"log"

	"github.com/apphub/apphub/core/controlplane/gateway"
	"github.com/apphub/apphub/core/infra/buildinfo"
	"github.com/apphub/apphub/core/infra/config"
)

func main() {
	log.Println("apphub api gateway starting...")
	buildinfo.Log("apphub-api-gateway")
	cfg := config.Load()
	if err := gateway.Run(cfg); err != nil {
		log.Fatalf("api gateway error: %v", err)
	}
}
