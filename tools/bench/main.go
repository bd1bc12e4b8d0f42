package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -------------------- latency stats --------------------

type LatencyStats struct {
	mu        sync.Mutex
	samples   []time.Duration
	failures  int
	delivered int
}

func (s *LatencyStats) Add(success bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !success {
		s.failures++
		return
	}
	s.samples = append(s.samples, latency)
}

func (s *LatencyStats) Delivered() {
	s.mu.Lock()
	s.delivered++
	s.mu.Unlock()
}

func (s *LatencyStats) percentile(p float64) time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*p)]
}

func (s *LatencyStats) Report(took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.samples) + s.failures
	fmt.Println("\n=== send results ===")
	fmt.Printf("took: %v\n", took)
	fmt.Printf("requests: %d ok: %d failed: %d pushed: %d\n", total, len(s.samples), s.failures, s.delivered)
	fmt.Printf("send latency p50: %v p95: %v p99: %v\n", s.percentile(0.50), s.percentile(0.95), s.percentile(0.99))
	if took > 0 {
		fmt.Printf("QPS: %.2f\n", float64(len(s.samples))/took.Seconds())
	}
	if total > 0 {
		fmt.Printf("success rate: %.2f%%\n", float64(len(s.samples))/float64(total)*100)
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("bench process: goroutines %d, heap %.1fMB\n", runtime.NumGoroutine(), float64(m.HeapAlloc)/1024/1024)
}

// -------------------- api client --------------------

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type account struct {
	ID    uint
	Token string
}

var httpClient = &http.Client{Timeout: 8 * time.Second}

func call(method, endpoint, token string, body interface{}) (*envelope, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return &env, fmt.Errorf("%s %s: %d %s", method, endpoint, env.Code, env.Message)
	}
	return &env, nil
}

func register(base, prefix string) (account, error) {
	name := prefix + uuid.NewString()[:8]
	env, err := call(http.MethodPost, base+"/api/v1/users/register", "", map[string]string{
		"username": name,
		"password": "bench-password",
	})
	if err != nil {
		return account{}, err
	}
	var out struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return account{}, err
	}
	return account{ID: out.User.ID, Token: out.AccessToken}, nil
}

// listen counts new_message pushes until done is closed
func listen(base string, acc account, stats *LatencyStats, ready *sync.WaitGroup, done <-chan struct{}) {
	u, _ := url.Parse(base)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = "token=" + url.QueryEscape(acc.Token)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	ready.Done()
	if err != nil {
		fmt.Println("websocket dial failed:", err)
		return
	}
	defer conn.Close()

	go func() {
		<-done
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		var frame struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type == "new_message" {
			stats.Delivered()
		}
	}
}

// -------------------- bench --------------------

func runMessageBench(base string, pairs, perSender int) {
	fmt.Println("\n=== message bench ===")
	fmt.Printf("target: %s pairs: %d messages per sender: %d\n", base, pairs, perSender)

	senders := make([]account, pairs)
	receivers := make([]account, pairs)
	for i := 0; i < pairs; i++ {
		var err error
		if senders[i], err = register(base, "bench_s_"); err != nil {
			fmt.Println("register sender failed:", err)
			return
		}
		if receivers[i], err = register(base, "bench_r_"); err != nil {
			fmt.Println("register receiver failed:", err)
			return
		}
	}

	stats := &LatencyStats{}
	done := make(chan struct{})
	var ready sync.WaitGroup
	for _, r := range receivers {
		ready.Add(1)
		go listen(base, r, stats, &ready, done)
	}
	ready.Wait()

	var wg sync.WaitGroup
	start := time.Now()
	for i := range senders {
		wg.Add(1)
		go func(from, to account) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				t0 := time.Now()
				_, err := call(http.MethodPost, base+"/api/v1/messages/send", from.Token, map[string]interface{}{
					"receiver_id": to.ID,
					"content":     "bench " + strconv.Itoa(j),
				})
				stats.Add(err == nil, time.Since(t0))
			}
		}(senders[i], receivers[i])
	}
	wg.Wait()
	took := time.Since(start)

	// let the last pushes arrive
	time.Sleep(time.Second)
	close(done)

	stats.Report(took)
}

func intArg(i, def int) int {
	if len(os.Args) > i {
		if v, err := strconv.Atoi(os.Args[i]); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func main() {
	pairs := intArg(1, 5)
	perSender := intArg(2, 20)

	baseURL := os.Getenv("IM_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	fmt.Println("=== im-social load test ===")
	fmt.Printf("start: %s\n", time.Now().Format("2006-01-02 15:04:05"))

	runMessageBench(baseURL, pairs, perSender)

	fmt.Println("\n=== done ===")
}
