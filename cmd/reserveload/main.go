package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/victorseo0526-a/minister-reservation/pkg/reserveclient"
)

var defaultRoles = []string{
	"Deputy Executor",
	"Minister of Health",
	"Minister of Defense",
	"Minister of Strategy",
	"Minister of Education",
}

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "reservationd base URL")
		workers    = flag.Int("workers", 20, "number of concurrent submitters")
		duration   = flag.Duration("duration", 20*time.Second, "test duration")
		adminToken = flag.String("admin-token", "", "admin token; empty skips the approval loop")
		days       = flag.Int("days", 2, "how many days ahead to spread slots over")
	)
	flag.Parse()

	rand.Seed(time.Now().UnixNano())

	httpc := &http.Client{Timeout: 10 * time.Second}
	submitClient := reserveclient.New(*baseURL, "", httpc)
	adminClient := reserveclient.New(*baseURL, *adminToken, httpc)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var (
		submitOK   int64
		conflicts  int64
		rejected   int64
		approveOK  int64
		approveLost int64
		opErrors   int64
	)

	var pendingMu sync.Mutex
	var pendingIDs []string

	wg := sync.WaitGroup{}
	wg.Add(*workers)

	for i := 0; i < *workers; i++ {
		i := i
		go func() {
			defer wg.Done()

			name := fmt.Sprintf("loadgen-%d", i)
			for ctx.Err() == nil {
				role := defaultRoles[rand.Intn(len(defaultRoles))]
				slot := randomSlot(*days)

				rec, err := submitClient.Submit(ctx, name, role, slot)
				switch {
				case err == nil:
					atomic.AddInt64(&submitOK, 1)
					pendingMu.Lock()
					pendingIDs = append(pendingIDs, rec.ID)
					pendingMu.Unlock()
				case isConflict(err):
					atomic.AddInt64(&conflicts, 1)
				case isRejected(err):
					atomic.AddInt64(&rejected, 1)
				case ctx.Err() != nil:
					return
				default:
					atomic.AddInt64(&opErrors, 1)
				}

				time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
			}
		}()
	}

	// Approval loop: drain pending ids, racing decisions against each other
	// the way concurrent operators would.
	if *adminToken != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(200 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					pendingMu.Lock()
					ids := pendingIDs
					pendingIDs = nil
					pendingMu.Unlock()

					for _, id := range ids {
						err := adminClient.Approve(ctx, id)
						switch {
						case err == nil:
							atomic.AddInt64(&approveOK, 1)
						case isStale(err):
							atomic.AddInt64(&approveLost, 1)
						case ctx.Err() != nil:
							return
						default:
							atomic.AddInt64(&opErrors, 1)
						}
					}
				}
			}
		}()
	}

	wg.Wait()

	fmt.Printf("submit_ok=%d conflicts=%d rejected=%d approve_ok=%d approve_lost=%d errors=%d\n",
		atomic.LoadInt64(&submitOK),
		atomic.LoadInt64(&conflicts),
		atomic.LoadInt64(&rejected),
		atomic.LoadInt64(&approveOK),
		atomic.LoadInt64(&approveLost),
		atomic.LoadInt64(&opErrors),
	)
}

// randomSlot picks a 30-minute boundary within the next `days` days,
// datetime-local formatted as the web UI would send it.
func randomSlot(days int) string {
	if days <= 0 {
		days = 1
	}
	slots := days * 48
	offset := time.Duration(rand.Intn(slots)) * 30 * time.Minute
	t := time.Now().UTC().Truncate(30 * time.Minute).Add(offset)
	return t.Format("2006-01-02T15:04")
}

func isConflict(err error) bool {
	var ce *reserveclient.ConflictError
	return errors.As(err, &ce)
}

func isRejected(err error) bool {
	var re *reserveclient.RejectedError
	return errors.As(err, &re)
}

func isStale(err error) bool {
	var se *reserveclient.StaleError
	return errors.As(err, &se)
}
