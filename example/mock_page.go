package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const activityTemplate = `<!DOCTYPE html>
<html><head><title>Burnaby Recreation</title></head>
<body>
<h1>Drop-in Basketball (Adult)</h1>
%s
</body></html>`

// StartMockActivityPage serves a fake activity page on addr that flips
// between full and open every 20-60 seconds.
// Call this in a goroutine before starting the watcher.
func StartMockActivityPage(addr string) {
	var (
		mu       sync.Mutex
		open     bool
		openings int
		flipAt   = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/activity/70284", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if time.Now().After(flipAt) {
			open = !open
			openings = 1 + rand.Intn(5)
			flipAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("activity changed", "open", open, "openings", openings)
		}
		body := "<p>This activity is currently full.</p><button>Join Waitlist</button>"
		if open {
			body = fmt.Sprintf("<p>%d openings remaining</p><button>Enroll Now</button>", openings)
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, activityTemplate, body)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock activity page failed", "error", err)
	}
}
