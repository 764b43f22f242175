// Package web embeds the dashboard's HTML templates and static assets so the
// csm binary is self-contained.
package web

import "embed"

// TemplateFS holds the page templates. layout.html defines "base" plus the
// shared status partials; every other file is a page.
//
//go:embed templates/*.html
var TemplateFS embed.FS

// StaticFS holds the stylesheet served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
