// Command feishu-outbound-server provides an HTTP REST API for splitting
// and delivering messages to Feishu.
//
// Usage:
//
//	feishu-outbound-server -p 8080
//	feishu-outbound-server -p 8080 -mode plain -limit 2000
//	FEISHU_APP_ID=cli_xxx FEISHU_APP_SECRET=xxx feishu-outbound-server
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/Alfex4936/feishu-outbound/internal/config"
	"github.com/Alfex4936/feishu-outbound/outbound"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	port  := flag.String("p", envOr("PORT", "8080"), "port to listen on")
	mode  := flag.String("mode", cfg.ChunkMode, "splitter: markdown | plain")
	limit := flag.Int("limit", cfg.TextLimit, "chunk size in characters, <= 0 disables splitting")
	flag.Parse()

	cfg.ChunkMode, cfg.TextLimit = *mode, *limit
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var adapter *outbound.Adapter
	if cfg.HasCredentials() {
		fc, err := cfg.NewFeishu()
		if err != nil {
			log.Fatalf("feishu init failed: %v", err)
		}
		adapter, err = cfg.NewAdapter(fc, nil)
		if err != nil {
			log.Fatalf("adapter init failed: %v", err)
		}
		log.Printf("   delivery : feishu (base=%s receive_id_type=%s)\n", cfg.BaseURL, cfg.ReceiveIDType)
	} else {
		log.Printf("   delivery : disabled (set FEISHU_APP_ID and FEISHU_APP_SECRET)\n")
	}
	log.Printf("   chunking : %s, limit=%s\n", cfg.Mode(), limitString(cfg.TextLimit))

	srv := outbound.NewServer(adapter, cfg.Mode(), cfg.TextLimit)

	addr := fmt.Sprintf(":%s", *port)
	log.Printf("🚀 feishu-outbound listening on http://localhost:%s\n", *port)
	log.Printf("   POST http://localhost:%s/v1/split\n", *port)
	log.Printf("   POST http://localhost:%s/v1/send\n", *port)
	log.Printf("   GET  http://localhost:%s/health\n", *port)
	log.Printf("   GET  http://localhost:%s/       (Redoc UI)\n", *port)
	log.Fatal(http.ListenAndServe(addr, srv.Routes()))
}

func limitString(n int) string {
	if n <= 0 {
		return "off"
	}
	return strconv.Itoa(n)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
