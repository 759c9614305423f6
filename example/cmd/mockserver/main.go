// Standalone mock activity page for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/recwatch serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
)

func main() {
	fmt.Println("Mock activity page on http://localhost:9999/activity/70284")
	fmt.Println("  POST /open?n=3  opens enrollment with 3 spots")
	fmt.Println("  POST /close     marks the activity full")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu       sync.Mutex
		openings = -1 // -1 means full
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /activity/70284", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n := openings
		mu.Unlock()

		body := "<p>This activity is currently full.</p>"
		if n >= 0 {
			body = fmt.Sprintf("<p>%d openings remaining</p><button>Enroll Now</button>", n)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body><h1>Drop-in Volleyball</h1>%s</body></html>", body)
	})
	mux.HandleFunc("POST /open", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("n"))
		if err != nil || n < 0 {
			n = 1
		}
		mu.Lock()
		openings = n
		mu.Unlock()
		slog.Info("enrollment opened", "openings", n)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /close", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		openings = -1
		mu.Unlock()
		slog.Info("enrollment closed")
		w.WriteHeader(http.StatusNoContent)
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
