// Command ask sends one question to a running assistant over the internal
// RPC endpoint and prints the answer with its confidence score.
//
// Usage:
//
//	go run ./cmd/ask [-addr 127.0.0.1:9400] "What does Part 139 require of aerodrome operators?"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/rpc"
)

func main() {
	_ = godotenv.Load()
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	addr := flag.String("addr", "", "assistant RPC address (defaults to rpc.addr from the config)")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	refresh := flag.Bool("refresh", false, "re-ingest documents instead of asking")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <question>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *addr == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		*addr = cfg.RPC.Addr
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" && !*refresh {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := rpc.Dial(ctx, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach assistant: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if *refresh {
		var resp rpc.RefreshResponse
		if err := client.Call(ctx, rpc.MethodRefresh, struct{}{}, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Processed %d documents\n", resp.DocumentsProcessed)
		return
	}

	var resp rpc.AskResponse
	if err := client.Call(ctx, rpc.MethodAsk, rpc.AskRequest{Query: query, Channel: "cli"}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "ask failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(resp.Answer)
	fmt.Printf("\nConfidence: %.2f\n", resp.Confidence)
}
