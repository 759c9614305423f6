// Package dashboard embeds the control page served at "/".
//
// The page is a single HTML file with inline CSS and JavaScript. It talks to
// the JSON control routes and listens on the /ws live channel.
package dashboard

import "embed"

// Assets holds assets/index.html. The literal {{.Title}} in the page is
// replaced with the configured title when served.
//
//go:embed assets/*
var Assets embed.FS
