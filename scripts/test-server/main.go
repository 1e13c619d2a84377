// Command test-server serves an in-memory purchase API for local runs of
// examples/purchases.yaml.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type user struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type purchase struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"userId"`
	EventID uuid.UUID `json:"eventId"`
	Status  string    `json:"status"`
}

type store struct {
	byName    map[string][]user
	purchases map[uuid.UUID][]purchase
}

func newStore(names []string, perUser int) *store {
	s := &store{
		byName:    make(map[string][]user),
		purchases: make(map[uuid.UUID][]purchase),
	}
	for _, name := range names {
		u := user{ID: uuid.New(), Name: name}
		s.byName[name] = append(s.byName[name], u)
		for i := 0; i < perUser; i++ {
			status := "completed"
			if rand.IntN(5) == 0 {
				status = "cancelled"
			}
			s.purchases[u.ID] = append(s.purchases[u.ID], purchase{
				ID: uuid.New(), UserID: u.ID, EventID: uuid.New(), Status: status,
			})
		}
	}
	return s
}

func (s *store) userPurchases(id uuid.UUID, status string) []purchase {
	out := []purchase{}
	for _, p := range s.purchases[id] {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":3001", "listen address")
	latency := flag.Duration("latency", 0, "artificial delay added to every response")
	flag.Parse()

	runtime.GOMAXPROCS(runtime.NumCPU())
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	// Names not listed here search to an empty array.
	s := newStore([]string{"alice", "bob", "carol", "dave", "erin"}, 8)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/user/{name}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, append([]user{}, s.byName[r.PathValue("name")]...))
	})
	purchases := func(status string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.PathValue("id"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
				return
			}
			writeJSON(w, http.StatusOK, s.userPurchases(id, status))
		}
	}
	mux.HandleFunc("GET /user/{id}/purchases", purchases(""))
	mux.HandleFunc("GET /user/{id}/purchases/cancellations", purchases("cancelled"))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "healthy")
	})

	var handler http.Handler = mux
	if *latency > 0 {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(*latency)
			mux.ServeHTTP(w, r)
		})
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info().Str("addr", *addr).Int("cpus", runtime.NumCPU()).Msg("starting purchase API")
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
