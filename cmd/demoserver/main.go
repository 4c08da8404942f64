// Command demoserver serves a small versioned website with pages whose later
// versions regress on contrast, typefaces, headings and readability.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/glimpse/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   glimpse demo site")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Every page starts at an accessible v1. Bump a page to v2")
	fmt.Println("and audit it again to watch the scores drop.")
	fmt.Println()
	fmt.Println("Regressions available:")
	fmt.Println("  - Low contrast links and buttons")
	fmt.Println("  - Extra typefaces")
	fmt.Println("  - Skipped heading levels")
	fmt.Println("  - Dense, hard to read prose")
	fmt.Println("  - Images without alternative text")
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
