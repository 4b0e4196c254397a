package main

import (
	"context"
	"crypto/tls"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// followIDRe pulls the target id out of the follow button on a profile page.
var followIDRe = regexp.MustCompile(`name="follow" value="([0-9a-f-]{36})"`)

// benchUser is a signed-up account with its own cookie jar.
type benchUser struct {
	Name   string
	ID     string
	Client *http.Client
}

func newClient(transport http.RoundTripper) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func getBody(ctx context.Context, client *http.Client, u string) (string, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", u, nil)
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}

// Measures how long a ribbit takes to appear on a follower's timeline.
func main() {
	// CLI flags
	var serverAddr string
	var U, F, P, concurrency int
	var pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&U, "users", 50, "number of users to create")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&P, "posts", 100, "number of ribbits to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for ribbit delivery")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification for self-signed certs")
	flag.Parse()

	ctx := context.Background()
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
	}

	// --- 1) Sign up users ---
	fmt.Printf("Creating %d users...\n", U)
	users := make([]benchUser, 0, U)
	for i := 0; i < U; i++ {
		name := fmt.Sprintf("e2e%d_%d", i, time.Now().UnixNano())
		client := newClient(transport)
		resp, err := client.PostForm(serverAddr+"/signup", url.Values{
			"username":  {name},
			"email":     {name + "@bench.local"},
			"password1": {"bench-password"},
			"password2": {"bench-password"},
		})
		if err != nil {
			fmt.Printf("signup error: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			fmt.Printf("signup rejected with status %d\n", resp.StatusCode)
			os.Exit(1)
		}
		users = append(users, benchUser{Name: name, Client: client})
	}

	// --- 2) Resolve user ids from the profile pages ---
	viewer := users[0].Client
	for i := range users {
		page, err := getBody(ctx, viewer, serverAddr+"/users/"+users[i].Name)
		if err != nil {
			fmt.Printf("profile error: %v\n", err)
			os.Exit(1)
		}
		if m := followIDRe.FindStringSubmatch(page); m != nil {
			users[i].ID = m[1]
		}
	}
	// The first user's own page has no follow button; read it from another viewer.
	if len(users) > 1 {
		page, err := getBody(ctx, users[1].Client, serverAddr+"/users/"+users[0].Name)
		if err == nil {
			if m := followIDRe.FindStringSubmatch(page); m != nil {
				users[0].ID = m[1]
			}
		}
	}
	fmt.Println("Users created successfully.")

	// --- 3) Create follow relationships between users ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	followers := make(map[int][]int)
	for i, u := range users {
		for j := 0; j < F; j++ {
			k := rand.Intn(len(users))
			if k == i || users[k].ID == "" {
				continue
			}
			resp, err := u.Client.PostForm(serverAddr+"/follow", url.Values{"follow": {users[k].ID}})
			if err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			resp.Body.Close()
			followers[k] = append(followers[k], i)
		}
	}
	fmt.Println("Follow relationships established.")

	// --- 4) Publish ribbits concurrently ---
	fmt.Printf("Publishing %d ribbits with concurrency %d...\n", P, concurrency)
	type ribbitRecord struct {
		Marker  string
		Author  int
		Created time.Time
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter
	ribbitsCh := make(chan ribbitRecord, P)

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			author := rand.Intn(len(users))
			marker := fmt.Sprintf("e2e-%d", rand.Int63())
			form := url.Values{"content": {marker}, "next_url": {"/"}}

			req, _ := http.NewRequestWithContext(ctx, "POST", serverAddr+"/submit", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := users[author].Client.Do(req)
			if err != nil {
				fmt.Printf("submit error: %v\n", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusFound {
				fmt.Printf("submit rejected with status %d\n", resp.StatusCode)
				return
			}
			ribbitsCh <- ribbitRecord{Marker: marker, Author: author, Created: time.Now()}
		}()
	}

	wg.Wait()
	close(ribbitsCh)

	// --- 5) Verify the ribbit shows up on followers' timelines ---
	fmt.Println("Checking timeline delivery...")
	var latencies []float64
	var latMu sync.Mutex
	var failCount int64
	var checksWg sync.WaitGroup

	for rr := range ribbitsCh {
		for _, fid := range followers[rr.Author] {
			checksWg.Add(1)
			go func(rr ribbitRecord, client *http.Client) {
				defer checksWg.Done()
				deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)

				// Poll the timeline until the ribbit appears or timeout
				for time.Now().Before(deadline) {
					page, err := getBody(ctx, client, serverAddr+"/")
					if err == nil && strings.Contains(page, rr.Marker) {
						lat := time.Since(rr.Created).Seconds() * 1000
						latMu.Lock()
						latencies = append(latencies, lat)
						latMu.Unlock()
						return
					}
					time.Sleep(200 * time.Millisecond)
				}

				latMu.Lock()
				failCount++
				latMu.Unlock()
			}(rr, users[fid].Client)
		}
	}

	checksWg.Wait()

	// --- 6) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
	} else {
		trimPercent := 1.0
		meanVal := trimmedMean(latencies, trimPercent)
		p50 := trimmedPercentile(latencies, 50, trimPercent)
		p90 := trimmedPercentile(latencies, 90, trimPercent)
		p99 := trimmedPercentile(latencies, 99, trimPercent)
		fmt.Printf("Delivery stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d\n",
			len(latencies), meanVal, p50, p90, p99, failCount)

		// Export latencies to CSV
		f, _ := os.Create("e2e_latencies.csv")
		w := csv.NewWriter(f)
		w.Write([]string{"latency_ms"})
		for _, v := range latencies {
			w.Write([]string{fmt.Sprintf("%.3f", v)})
		}
		w.Flush()
		f.Close()
		fmt.Println("Saved e2e_latencies.csv")
	}
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	data = data[trim : len(data)-trim]
	return percentile(data, p)
}

// percentile calculates the requested percentile using linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	d0 := data[f] * (float64(c) - k)
	d1 := data[c] * (k - float64(f))
	return d0 + d1
}
