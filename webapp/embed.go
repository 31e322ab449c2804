// Package webapp provides embedded static files for the drive web app.
package webapp

import "embed"

//go:embed index.html sign-in.html sign-up.html assets
var Assets embed.FS
