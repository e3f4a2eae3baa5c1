/******************************************************************************
 *
 *  Description :
 *
 *    Setup and initialization of the panel server: config parsing, store
 *    connection, hub and session store startup, middleware chain.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	jcr "github.com/tinode/jsonco"

	"github.com/pylonhost/pylon/server/logs"
	"github.com/pylonhost/pylon/server/store"

	// Database adapters registered at startup.
	_ "github.com/pylonhost/pylon/server/db/mysql"
	_ "github.com/pylonhost/pylon/server/db/postgres"
)

const (
	// Base URL path for serving the API.
	defaultApiPath = "/"

	// Maximum accepted websocket message size.
	defaultMaxMessageSize = 1 << 18 // 256K

	defaultTokenExpiresIn = 24 * time.Hour

	defaultRateLimitMaxRequests = 100
	defaultRateLimitWindow      = 15 * time.Minute

	defaultCommandEchoDelay = time.Second
	defaultPowerSettleDelay = 3 * time.Second
)

var globals struct {
	hub          *Hub
	sessionStore *SessionStore
	auth         *Authenticator
	rateLimiter  *RateLimiter
	pending      *pendingTransitions
	sched        Scheduler

	statsUpdate chan *varUpdate

	maxMessageSize   int64
	wsCompression    bool
	commandEchoDelay time.Duration
	powerSettleDelay time.Duration
}

type rateLimitConfig struct {
	MaxRequests int `json:"max_requests"`
	// Window length in seconds.
	Window int `json:"window"`
}

type configType struct {
	Listen  string `json:"listen"`
	ApiPath string `json:"api_path"`
	// Path for exposing runtime stats, or "-" to disable.
	ExpvarPath string `json:"expvar"`

	// Storage configuration: adapter selection and per-adapter settings.
	StoreConfig json.RawMessage `json:"store_config"`

	// Security token expiration time, in seconds.
	TokenExpiresIn int `json:"token_expires_in"`

	MaxMessageSize int  `json:"max_message_size"`
	WSCompression  bool `json:"ws_compression"`

	RateLimit *rateLimitConfig `json:"rate_limit"`

	CommandEchoDelayMs int `json:"command_echo_delay_ms"`
	PowerSettleDelayMs int `json:"power_settle_delay_ms"`

	// Origins allowed by the CORS middleware. Empty list allows any.
	CorsOrigins []string `json:"cors_origins"`
}

func main() {
	logs.Info.Printf("Server pid=%d started with processes: %d", os.Getpid(),
		runtime.GOMAXPROCS(runtime.NumCPU()))

	var configfile = flag.String("config", "./pylon.conf", "Path to config file.")
	var listenOn = flag.String("listen", "", "Override config address and port to listen on.")
	var initDb = flag.Bool("init_db", false, "Initialize the database schema and exit.")
	var resetDb = flag.Bool("reset_db", false, "Drop and recreate the database schema, then exit.")
	flag.Parse()

	logs.Info.Printf("Using config from: '%s'", *configfile)

	var config configType
	if file, err := os.Open(*configfile); err != nil {
		logs.Err.Fatalln("Failed to read config file:", err)
	} else {
		jr := jcr.New(file)
		if err = json.NewDecoder(jr).Decode(&config); err != nil {
			switch jerr := err.(type) {
			case *json.UnmarshalTypeError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
					jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
			case *json.SyntaxError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
					lnum, cnum, jerr.Offset, jerr.Error())
			default:
				logs.Err.Fatalln("Failed to parse config file:", err)
			}
		}
		file.Close()
	}

	if *listenOn != "" {
		config.Listen = *listenOn
	}
	if config.Listen == "" {
		config.Listen = ":6060"
	}

	var err error
	if err = store.Open(config.StoreConfig); err != nil {
		logs.Err.Fatalln("Failed to connect to database:", err)
	}
	defer func() {
		store.Close()
		logs.Info.Println("Closed database connection(s)")
	}()
	logs.Info.Println("Database adapter:", store.GetAdapterName())

	if *initDb || *resetDb {
		if err = store.InitDb(config.StoreConfig, *resetDb); err != nil {
			logs.Err.Fatalln("Failed to initialize database:", err)
		}
		logs.Info.Println("Database schema initialized")
		return
	}

	globals.maxMessageSize = int64(config.MaxMessageSize)
	if globals.maxMessageSize <= 0 {
		globals.maxMessageSize = defaultMaxMessageSize
	}
	globals.wsCompression = config.WSCompression

	tokenLifetime := defaultTokenExpiresIn
	if config.TokenExpiresIn > 0 {
		tokenLifetime = time.Duration(config.TokenExpiresIn) * time.Second
	}

	globals.commandEchoDelay = defaultCommandEchoDelay
	if config.CommandEchoDelayMs > 0 {
		globals.commandEchoDelay = time.Duration(config.CommandEchoDelayMs) * time.Millisecond
	}
	globals.powerSettleDelay = defaultPowerSettleDelay
	if config.PowerSettleDelayMs > 0 {
		globals.powerSettleDelay = time.Duration(config.PowerSettleDelayMs) * time.Millisecond
	}

	rlMax, rlWindow := defaultRateLimitMaxRequests, defaultRateLimitWindow
	if config.RateLimit != nil {
		if config.RateLimit.MaxRequests > 0 {
			rlMax = config.RateLimit.MaxRequests
		}
		if config.RateLimit.Window > 0 {
			rlWindow = time.Duration(config.RateLimit.Window) * time.Second
		}
	}

	mux := newAPIMux()

	expvarPath := config.ExpvarPath
	if expvarPath == "" {
		expvarPath = "/stats/expvar"
	}
	statsInit(mux, expvarPath)

	globals.sched = timerScheduler{}
	globals.sessionStore = NewSessionStore()
	globals.hub = newHub()
	globals.auth = newAuthenticator(tokenLifetime)
	globals.pending = newPendingTransitions()
	globals.rateLimiter = newRateLimiter(rlMax, rlWindow)
	stopSweeper := globals.rateLimiter.runSweeper()
	defer stopSweeper()

	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	if len(config.CorsOrigins) > 0 {
		corsOrigins = handlers.AllowedOrigins(config.CorsOrigins)
	}
	handler := handlers.CORS(
		corsOrigins,
		handlers.AllowedHeaders([]string{"Authorization", "X-Auth-Token", "Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
	)(rateLimit(mux))
	handler = handlers.CombinedLoggingHandler(os.Stdout, handler)

	// Serve the whole API under a non-root base path if one is configured.
	if config.ApiPath == "" {
		config.ApiPath = defaultApiPath
	}
	if config.ApiPath != "/" {
		handler = http.StripPrefix(strings.TrimSuffix(config.ApiPath, "/"), handler)
	}

	if err = listenAndServe(config.Listen, handler, signalHandler()); err != nil {
		logs.Err.Fatalln(err)
	}

	statsShutdown()
	logs.Info.Println("All done, good bye")
}
