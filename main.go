package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	cookieName     = "pid"
	actionCooldown = 300 * time.Millisecond
	adminToken     = "DEV"
	serverAddr     = ":8080"
	rankingLimit   = 10
)

//go:embed templates/*.html
var templateFS embed.FS

func main() {
	bal, err := loadBalanceFromEnv()
	if err != nil {
		log.Fatalf("load balance: %v", err)
	}
	store, err := newConfiguredStore(bal)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	tmpl := parseTemplates()
	startEconomyScheduler(store)
	startGrowthScheduler(store)
	mux := newMux(store, tmpl)

	log.Printf("listening on http://localhost%s", serverAddr)
	log.Fatal(http.ListenAndServe(serverAddr, mux))
}

func parseTemplates() *template.Template {
	return template.Must(template.New("root").ParseFS(templateFS, "templates/*.html"))
}

func newMux(store *Store, tmpl *template.Template) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Concurrency model: lock for the full handler so every read
		// and write in one request sees a consistent game.
		store.mu.Lock()
		defer store.mu.Unlock()

		p := ensurePlayerLocked(store, w, r)
		p.LastSeen = time.Now().UTC()
		renderPage(w, tmpl, "base", buildPageDataLocked(store, p.ID, true))
	})

	mux.HandleFunc("/role", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		store.mu.Lock()
		defer store.mu.Unlock()

		p := ensurePlayerLocked(store, w, r)
		now := time.Now().UTC()
		p.LastSeen = now

		role := Role(strings.TrimSpace(r.FormValue("role")))
		if role != RoleFarmer && role != RoleMerchant {
			setToastLocked(store, p.ID, "Pick farmer or merchant.")
			renderGameResponse(w, tmpl, buildPageDataLocked(store, p.ID, true))
			return
		}
		if store.Games[p.ID] == nil {
			store.Games[p.ID] = newGameLocked(store, role, now)
			setToastLocked(store, p.ID, fmt.Sprintf("Welcome to Amsterdam, %s.", roleLabel(role)))
		}
		renderGameResponse(w, tmpl, buildPageDataLocked(store, p.ID, true))
	})

	mux.HandleFunc("/action", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		store.mu.Lock()
		defer store.mu.Unlock()

		p := ensurePlayerLocked(store, w, r)
		now := time.Now().UTC()
		p.LastSeen = now

		if tooSoon(store.LastActionAt[p.ID], now, actionCooldown) {
			renderGameResponse(w, tmpl, buildPageDataLocked(store, p.ID, true))
			return
		}
		store.LastActionAt[p.ID] = now

		action := strings.TrimSpace(r.FormValue("action"))
		id := strings.TrimSpace(r.FormValue("offer_id"))
		if id == "" {
			id = strings.TrimSpace(r.FormValue("plot_id"))
		}
		amount, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("price")))

		handleActionLocked(store, p, now, action, id, amount)
		renderGameResponse(w, tmpl, buildPageDataLocked(store, p.ID, true))
	})

	mux.HandleFunc("/frag/game", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		store.mu.Lock()
		defer store.mu.Unlock()
		p := ensurePlayerLocked(store, w, r)
		p.LastSeen = time.Now().UTC()
		renderGameResponse(w, tmpl, buildPageDataLocked(store, p.ID, false))
	})

	mux.HandleFunc("/ranking", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data := RankingData{}
		if store.repo != nil {
			results, err := store.repo.TopResults(r.Context(), rankingLimit)
			if err != nil {
				log.Printf("load ranking failed: %v", err)
				http.Error(w, "ranking unavailable", http.StatusInternalServerError)
				return
			}
			data.Rows = rankingRows(results)
			data.DBAvailable = true
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.ExecuteTemplate(w, "ranking", data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			http.Error(w, "no player cookie", http.StatusUnauthorized)
			return
		}

		store.mu.Lock()
		g := store.Games[cookie.Value]
		var snap *Snapshot
		if g != nil {
			s := buildSnapshotLocked(store, cookie.Value, g)
			snap = &s
		}
		store.mu.Unlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if snap == nil {
			http.Error(w, `{"error":"no active game"}`, http.StatusNotFound)
			return
		}
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("encode state failed: %v", err)
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWS(store, w, r)
	})

	mux.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		store.mu.Lock()
		defer store.mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		tokenQ := adminTokenSuffix(r)
		_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>Admin</title><style>body{font-family:ui-sans-serif,system-ui;background:#0b0f14;color:#e5ecf4;padding:24px}pre{background:#121923;border:1px solid #2a3442;padding:12px;border-radius:8px;overflow:auto}button{background:#1f6feb;color:#fff;border:0;padding:8px 12px;border-radius:6px;margin-right:8px;cursor:pointer}</style></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>Admin</h1>")
		_, _ = fmt.Fprintf(w, "<form style=\"display:inline\" method=\"post\" action=\"/admin/tick%s\"><button type=\"submit\">Force Tick</button></form>", tokenQ)
		_, _ = fmt.Fprintf(w, "<form style=\"display:inline\" method=\"post\" action=\"/admin/reset%s\"><button type=\"submit\">Reset Games</button></form>", tokenQ)
		_, _ = fmt.Fprintf(w, "<h2>Games</h2><pre>")
		for pid, g := range store.Games {
			name := pid
			if p := store.Players[pid]; p != nil {
				name = p.Name
			}
			_, _ = fmt.Fprintf(w, "%s role=%s day=%d coins=%d stock=%d price=%d over=%v\n", name, g.Role, g.Day, g.Coins, g.Stock, g.CurrentPrice, g.GameOver)
		}
		_, _ = fmt.Fprintf(w, "</pre></body></html>")
	})

	mux.HandleFunc("/admin/tick", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		store.mu.Lock()
		now := time.Now().UTC()
		for pid, g := range store.Games {
			if g.GameOver {
				continue
			}
			runDayTickLocked(store, pid, g, now)
			g.LastTickAt = now
			broadcastSnapshotLocked(store, pid, g)
		}
		store.mu.Unlock()
		http.Redirect(w, r, "/admin"+adminTokenSuffix(r), http.StatusSeeOther)
	})

	mux.HandleFunc("/admin/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !isAdmin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		store.mu.Lock()
		store.Games = map[string]*Game{}
		store.ToastByPlayer = map[string]string{}
		store.mu.Unlock()
		http.Redirect(w, r, "/admin"+adminTokenSuffix(r), http.StatusSeeOther)
	})

	return mux
}

func ensurePlayerLocked(store *Store, w http.ResponseWriter, r *http.Request) *Player {
	var pid string
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		pid = c.Value
	} else {
		pid = generateID()
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    pid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	p := store.Players[pid]
	if p == nil {
		p = &Player{ID: pid, Name: uniqueGuestNameLocked(store), LastSeen: time.Now().UTC()}
		store.Players[pid] = p
		setToastLocked(store, pid, fmt.Sprintf("You arrive in Amsterdam as %s.", p.Name))
	}
	return p
}

func roleLabel(role Role) string {
	if role == RoleFarmer {
		return "tulip farmer"
	}
	return "tulip merchant"
}

func renderPage(w http.ResponseWriter, tmpl *template.Template, name string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// htmx response strategy: /action, /role and /frag/game return the game
// panel as the primary swap target plus out-of-band fragments so the
// header stats and toast stay in sync.
func renderGameResponse(w http.ResponseWriter, tmpl *template.Template, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "game", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = tmpl.ExecuteTemplate(w, "header_oob", data)
	_ = tmpl.ExecuteTemplate(w, "toast_oob", data)
}

func isAdmin(r *http.Request) bool {
	if r.URL.Query().Get("token") == adminToken {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return host == "localhost" || (ip != nil && ip.IsLoopback())
}

func adminTokenSuffix(r *http.Request) string {
	if r.URL.Query().Get("token") == adminToken {
		return "?token=" + adminToken
	}
	return ""
}

func tooSoon(last time.Time, now time.Time, d time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < d
}
