//go:build tools

// Smoke client for a running `seqgen serve`: generates one sequence, then
// fetches its text form, verification and statistics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func get(url string) []byte {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request %s failed: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", url, resp.Status, b)
		os.Exit(1)
	}
	return b
}

func main() {
	base := flag.String("base", "http://localhost:4040", "server base URL")
	encoding := flag.String("encoding", "text", "text or raw")
	flag.Parse()

	b := get(*base + "/generate?encoding=" + *encoding)
	fmt.Println("--- /generate response ---")
	fmt.Println(string(b))
	var gen struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &gen); err != nil || gen.ID == "" {
		fmt.Fprintf(os.Stderr, "no id in generate response (%v)\n", err)
		os.Exit(1)
	}

	for _, action := range []string{"txt", "verify", "stats"} {
		fmt.Printf("--- /sequences/{id}/%s response ---\n", action)
		fmt.Println(string(get(*base + "/sequences/" + gen.ID + "/" + action)))
	}
}
