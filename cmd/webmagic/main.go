package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ludios/webmagic"
	cachebreak "github.com/ludios/webmagic/pkg/cache-break"
	cacheheader "github.com/ludios/webmagic/pkg/cache-header"
	"github.com/ludios/webmagic/pkg/csrf"
	"github.com/ludios/webmagic/pkg/session"
	waitpage "github.com/ludios/webmagic/pkg/wait-page"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var (
	configFilenameFlag string
	portFlag           int
	rootFlag           string
	cacheSecondsFlag   int
	rewriteCSSFlag     bool
	providerFlag       string
	secretFlag         string
	secretFileFlag     string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&rootFlag, "root", "", "Directory to serve (overrides config)")
	flag.IntVar(&cacheSecondsFlag, "cache", 0, "Cache lifetime in seconds for served files")
	flag.BoolVar(&rewriteCSSFlag, "rewrite-css", false, "Rewrite stylesheets with cachebreakers")
	flag.StringVar(&providerFlag, "provider", "memory", "Digest cache provider to use")
	flag.StringVar(&secretFlag, "secret", "", "Secret string used when generating CSRF tokens (32 bytes or longer)")
	flag.StringVar(&secretFileFlag, "secretfile", "", "File containing the CSRF secret")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	var config Config

	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config")
		}
	}
	config = applyFlags(config)
	if len(config.Sites) == 0 {
		log.Fatal().Msg("Please specify a site root (-root or config)")
	}

	secret := getSecret(config)
	if err := csrf.ValidateSecret(secret); err != nil {
		log.Fatal().Err(err).Msg("Invalid CSRF secret")
	}
	stopper, err := csrf.NewStopper(secret)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create CSRF stopper")
	}
	installer := &session.Installer{}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Get("/_session", sessionHandler(installer, stopper))
	r.Handle("/_wait", &waitpage.Handler{})

	for _, site := range config.Sites {
		handler := newSiteHandler(site, config.Digests)
		route := strings.TrimSuffix(site.Route, "/")
		if route == "" {
			r.Mount("/", handler)
		} else {
			r.Mount(route, http.StripPrefix(route, handler))
		}
		log.Info().Str("route", site.Route).Str("root", site.Root).Msg("Serving site")
	}

	addr := fmt.Sprintf(":%d", config.Port)
	log.Info().Str("addr", addr).Msg("Listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// applyFlags fills in config values not set in the config file from
// the command line.
func applyFlags(config Config) Config {
	if config.Port <= 0 {
		config.Port = portFlag
	}
	if config.Digests.Provider == "" {
		config.Digests.Provider = providerFlag
	}
	if rootFlag != "" {
		config.Sites = append(config.Sites, SiteConfig{
			Route:      "/",
			Root:       rootFlag,
			MaxAge:     cacheSecondsFlag,
			RewriteCSS: rewriteCSSFlag,
		})
	}
	return config
}

func newSiteHandler(site SiteConfig, digestsConfig Digests) *webmagic.Handler {
	fs := afero.NewBasePathFs(afero.NewOsFs(), site.Root)

	var digests cachebreak.DigestCache
	switch digestsConfig.Provider {
	case "sqlite":
		digests = cachebreak.NewSQLiteCache(fs, site.DigestFile)
	case "memory":
		digests = cachebreak.NewMemCache(fs)
	default:
		log.Fatal().Msgf("Unsupported digest provider: %s", digestsConfig.Provider)
	}

	return webmagic.New(webmagic.Config{
		FS: fs,
		Cache: cacheheader.Options{
			MaxAge:      time.Duration(site.MaxAge) * time.Second,
			HTTPPublic:  site.HTTPPublic,
			HTTPSPublic: site.HTTPSPublic,
		},
		RewriteCSS:  site.RewriteCSS,
		Digests:     digests,
		DefaultType: site.DefaultType,
		Logger:      &log.Logger,
	})
}

func getSecret(config Config) []byte {
	if secretFlag != "" {
		return []byte(secretFlag)
	}
	secretFile := secretFileFlag
	if secretFile == "" {
		secretFile = config.SecretFile
	}
	if secretFile == "" {
		log.Fatal().Msg("A CSRF secret is required (-secret or -secretfile)")
	}
	secret, err := os.ReadFile(secretFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read secret file")
	}
	return bytes.TrimSpace(secret)
}

// sessionHandler installs the session cookie and returns the CSRF token
// for the session. With a ?token= parameter it instead checks the given
// token against the session.
func sessionHandler(installer *session.Installer, stopper *csrf.Stopper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := installer.GetSet(w, r)
		if err != nil {
			http.Error(w, "could not establish session", http.StatusInternalServerError)
			return
		}
		cacheheader.SetNoStore(w.Header())
		if token := r.URL.Query().Get("token"); token != "" {
			if err := stopper.CheckToken(id, token); err != nil {
				http.Error(w, "token rejected", http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(stopper.MakeToken(id)))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}
