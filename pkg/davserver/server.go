// Package davserver is a small WebDAV server with basic authentication. It
// stands in for the remote file server during development and in tests.
package davserver

import (
	"crypto/subtle"
	"net/http"

	"github.com/apex/log"
	"golang.org/x/net/webdav"
)

type Options struct {
	// Prefix is stripped from request paths, for example "/webdav".
	Prefix string

	// Root is the directory served. When empty files are kept in memory.
	Root string

	Username string
	Password string
}

// NewHandler returns a WebDAV handler. Requests without matching basic auth
// credentials get a 401 when Username is set.
func NewHandler(opts Options) http.Handler {
	var fs webdav.FileSystem = webdav.NewMemFS()
	if opts.Root != "" {
		fs = webdav.Dir(opts.Root)
	}

	davHandler := &webdav.Handler{
		Prefix:     opts.Prefix,
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.Debugf("WebDAV %s %s: %s", r.Method, r.URL, err)
			}
		},
	}

	if opts.Username == "" {
		return davHandler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, _ := r.BasicAuth()
		if secureEqual(username, opts.Username) && secureEqual(password, opts.Password) {
			davHandler.ServeHTTP(w, r)
			return
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="mcsync WebDAV"`)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("401 Unauthorized\n"))
	})
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
