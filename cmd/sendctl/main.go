package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"securesend/internal/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "SecureSend server base URL")
	token := flag.String("token", "", "upload token of the target drop box")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sendctl -token <upload-token> [-server <url>] <files...>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "Error: -token is required")
		flag.Usage()
		os.Exit(1)
	}

	parsed, err := client.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	files, err := client.ExpandFiles(parsed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	uploader := client.NewUploader(*server, *token)
	ctx := context.Background()

	var failed int
	for _, path := range files {
		result, err := uploader.Upload(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			failed++
			continue
		}
		fmt.Printf("✓ %s (%d bytes)\n", result.OriginalName, result.FileSize)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d uploads failed\n", failed, len(files))
		os.Exit(1)
	}
}
