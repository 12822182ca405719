// Simulation client: drives the trading API end to end by injecting
// random signals, submitting direct orders, cancelling a share of them
// and reporting per-route latency percentiles.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/tradeflow-api/internal/types"
)

const (
	minSignals    = 10
	maxSignals    = 60
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var symbols = []string{"600519", "000001", "300750", "601318", "000858"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

// newSimulationClient authenticates against the API and prepares
// performance tracking.
func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":    {name: "Authentication"},
			"signal":  {name: "Inject Signal"},
			"order":   {name: "Submit Order"},
			"list":    {name: "List Orders"},
			"cancel":  {name: "Cancel Order"},
			"status":  {name: "Engine Status"},
			"riskrun": {name: "Risk Inspection"},
		},
	}

	creds := map[string]string{"username": "operator", "password": "operator"}
	var token struct {
		Token string `json:"jwt_token"`
	}
	if err := sc.call("auth", http.MethodPost, "/api/v1/auth/login", creds, &token); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	sc.authToken = token.Token

	return sc, nil
}

// call performs one API request, records its latency and decodes the
// response envelope into out.
func (sc *simulationClient) call(route, method, path string, payload, out interface{}) error {
	start := time.Now()
	err := sc.doRequest(method, path, payload, out)
	elapsed := time.Since(start)

	sc.mu.Lock()
	rs := sc.stats[route]
	rs.addDuration(elapsed)
	if err != nil {
		rs.failures++
	}
	sc.mu.Unlock()

	return err
}

func (sc *simulationClient) doRequest(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response: %w, body: %s", err, string(respBody))
	}
	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("api error [%s]: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// randomSignal builds a plausible signal; roughly half carry a target
// price and become limit orders downstream.
func randomSignal() types.Signal {
	signal := types.Signal{
		Symbol:         symbols[rand.Intn(len(symbols))],
		SignalType:     types.SignalTypeBuy,
		TargetQuantity: decimal.NewFromInt(int64((rand.Intn(20) + 1) * 100)),
		Source:         "simulation",
	}
	if rand.Intn(2) == 0 {
		signal.SignalType = types.SignalTypeSell
	}
	if rand.Intn(2) == 0 {
		price := decimal.NewFromFloat(5 + rand.Float64()*45).Round(2)
		signal.TargetPrice = decimal.NewNullDecimal(price)
	}
	return signal
}

func randomOrder() types.Order {
	order := types.Order{
		Symbol:    symbols[rand.Intn(len(symbols))],
		Side:      types.SignalTypeBuy,
		OrderType: types.OrderTypeLimit,
		Quantity:  decimal.NewFromInt(int64((rand.Intn(10) + 1) * 100)),
		Price:     decimal.NewNullDecimal(decimal.NewFromFloat(5 + rand.Float64()*45).Round(2)),
	}
	return order
}

func main() {
	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create simulation client")
	}
	log.Info().Msg("authenticated with trading API")

	total := minSignals + rand.Intn(maxSignals-minSignals+1)
	log.Info().Int("signals", total).Int("workers", numWorkers).Msg("starting simulation")

	// Inject signals concurrently; the engine consumes them on its own
	// schedule.
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if err := sc.call("signal", http.MethodPost, "/api/v1/signals", randomSignal(), nil); err != nil {
					log.Warn().Err(err).Msg("signal injection failed")
				}
			}
		}()
	}
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Submit a handful of direct orders; rejections from the broker or
	// the risk policy are expected outcomes here.
	var submitted []types.Order
	for i := 0; i < total/3+1; i++ {
		var order types.Order
		if err := sc.call("order", http.MethodPost, "/api/v1/orders", randomOrder(), &order); err != nil {
			log.Warn().Err(err).Msg("direct order rejected")
			continue
		}
		submitted = append(submitted, order)
	}

	// Cancel a third of what was accepted.
	for i, order := range submitted {
		if i%3 != 0 {
			continue
		}
		var result struct {
			Cancelled bool `json:"cancelled"`
		}
		if err := sc.call("cancel", http.MethodDelete, "/api/v1/orders/"+order.OrderID, nil, &result); err != nil {
			log.Warn().Err(err).Str("order_id", order.OrderID).Msg("cancel request failed")
			continue
		}
		log.Info().Str("order_id", order.OrderID).Bool("cancelled", result.Cancelled).Msg("cancel requested")
	}

	var orders []types.Order
	if err := sc.call("list", http.MethodGet, "/api/v1/orders?limit=200", nil, &orders); err != nil {
		log.Warn().Err(err).Msg("order listing failed")
	}

	var status types.EngineStatus
	if err := sc.call("status", http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		log.Warn().Err(err).Msg("status query failed")
	}

	var riskResults []types.RiskCheckResult
	if err := sc.call("riskrun", http.MethodGet, "/api/v1/risk/check", nil, &riskResults); err != nil {
		log.Warn().Err(err).Msg("risk inspection failed")
	}

	printSummary(sc, orders, status, riskResults)
}

func printSummary(sc *simulationClient, orders []types.Order, status types.EngineStatus, riskResults []types.RiskCheckResult) {
	byStatus := make(map[types.OrderStatus]int)
	for i := range orders {
		byStatus[orders[i].Status]++
	}

	fmt.Println("\n=== Simulation Summary ===")
	fmt.Printf("Engine running: %v (trading day: %v, trading time: %v)\n",
		status.Running, status.TradingDay, status.TradingTime)
	fmt.Printf("Pending signals: %d, active orders: %d\n", status.PendingSignals, status.ActiveOrders)

	fmt.Println("\nOrders by status:")
	for s, n := range byStatus {
		fmt.Printf("  %-14s %d\n", s, n)
	}

	alerts := 0
	for _, r := range riskResults {
		if !r.Passed {
			alerts++
		}
	}
	fmt.Printf("\nRisk inspection: %d check(s), %d alert(s)\n", len(riskResults), alerts)

	fmt.Println("\nRoute performance:")
	fmt.Printf("%-18s %6s %6s %10s %10s %10s %10s\n", "ROUTE", "CALLS", "FAIL", "MEAN", "MEDIAN", "P95", "P99")
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		_, _, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-18s %6d %6d %10s %10s %10s %10s\n",
			rs.name, rs.totalCalls, rs.failures, mean, median, p95, p99)
	}
}
