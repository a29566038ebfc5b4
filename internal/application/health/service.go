package health

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"time"

	"carbon-registry/internal/domain"
	"carbon-registry/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// DBPinger is optional for health check. If nil, database is reported as disconnected.
type DBPinger interface {
	Ping() error
}

// LedgerReader exposes the program-wide counters shown on the dashboard.
type LedgerReader interface {
	GetProgramState(ctx context.Context) (*domain.ProgramState, error)
}

// CollectResult is the shape of /health/json and the dashboard payload.
type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Ledger       LedgerInfo           `json:"ledger"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	Alloc    int `json:"alloc"`
	HeapUsed int `json:"heapUsed"`
}

type TrafficInfo struct {
	TotalRequests        int              `json:"totalRequests"`
	SuccessCount         int              `json:"successCount"`
	FailedCount          int              `json:"failedCount"`
	RejectedInstructions int              `json:"rejectedInstructions"`
	SuccessRate          string           `json:"successRate"`
	AvgResponseTime      interface{}      `json:"avgResponseTime"`
	LastRequest          interface{}      `json:"lastRequest"`
	Instructions         map[string]int64 `json:"instructions"`
}

// LedgerInfo is zero-valued with Initialized=false until initialize has run.
type LedgerInfo struct {
	Initialized         bool   `json:"initialized"`
	Authority           string `json:"authority,omitempty"`
	ProjectCount        uint64 `json:"projectCount"`
	BatchCount          uint64 `json:"batchCount"`
	TotalCreditsIssued  uint64 `json:"totalCreditsIssued"`
	TotalCreditsRetired uint64 `json:"totalCreditsRetired"`
}

type DepStatus struct {
	Status string      `json:"status"`
	PingMs interface{} `json:"pingMs"`
}

// CollectHealth gathers health data from Redis, the database and the ledger. Redis is
// optional: when rdb is nil the service is still "ok" as long as the database answers.
func CollectHealth(ctx context.Context, rdb redis.UniversalClient, db DBPinger, ledger LedgerReader) CollectResult {
	result := CollectResult{
		Dependencies: make(map[string]DepStatus),
	}

	dbStatus := "disconnected"
	var dbPingMs *int64
	if db != nil {
		start := time.Now()
		if err := db.Ping(); err == nil {
			ms := time.Since(start).Milliseconds()
			dbPingMs = &ms
			dbStatus = "connected"
		} else {
			dbStatus = "error"
		}
	}
	result.Dependencies["database"] = DepStatus{Status: dbStatus, PingMs: dbPingMs}

	redisStatus := "disabled"
	var redisPingMs *int64
	stats := TrafficInfo{AvgResponseTime: 0, SuccessRate: "100", Instructions: map[string]int64{}}
	startTimeMs := processStart.UnixMilli()

	if rdb != nil {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err == nil {
			ms := time.Since(start).Milliseconds()
			redisPingMs = &ms
			redisStatus = "connected"
			startTimeMs = readTraffic(ctx, rdb, &stats, startTimeMs)
		} else {
			redisStatus = "error"
		}
	}
	result.Dependencies["redis"] = DepStatus{Status: redisStatus, PingMs: redisPingMs}
	result.Traffic = stats

	if ledger != nil && dbStatus == "connected" {
		if state, err := ledger.GetProgramState(ctx); err == nil {
			result.Ledger = LedgerInfo{
				Initialized:         true,
				Authority:           state.Authority.String(),
				ProjectCount:        state.ProjectCount,
				BatchCount:          state.NextBatchSequence,
				TotalCreditsIssued:  state.TotalCreditsIssued,
				TotalCreditsRetired: state.TotalCreditsRetired,
			}
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptimeSec := (time.Now().UnixMilli() - startTimeMs) / 1000
	if uptimeSec < 0 {
		uptimeSec = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptimeSec,
		Memory:        MemoryInfo{Alloc: int(m.Alloc / 1024 / 1024), HeapUsed: int(m.HeapInuse / 1024 / 1024)},
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	if dbStatus == "connected" && redisStatus != "error" {
		result.Status = "ok"
	} else {
		result.Status = "issue"
	}
	return result
}

var processStart = time.Now()

func readTraffic(ctx context.Context, rdb redis.UniversalClient, stats *TrafficInfo, startTimeMs int64) int64 {
	totalReq, _ := rdb.Get(ctx, middleware.KeyReqTotal).Result()
	totalErr, _ := rdb.Get(ctx, middleware.KeyReqErrors).Result()
	rejected, _ := rdb.Get(ctx, middleware.KeyReqRejected).Result()
	totalTime, _ := rdb.Get(ctx, middleware.KeyResTime).Result()
	resCount, _ := rdb.Get(ctx, middleware.KeyResCount).Result()
	startTimeStr, _ := rdb.Get(ctx, middleware.KeyStartTime).Result()
	lastReqStr, _ := rdb.Get(ctx, middleware.KeyLastReq).Result()
	perInstruction, _ := rdb.HGetAll(ctx, middleware.KeyInstructions).Result()

	if startTimeStr != "" {
		if t, err := strconv.ParseInt(startTimeStr, 10, 64); err == nil {
			startTimeMs = t
		}
	} else {
		rdb.Set(ctx, middleware.KeyStartTime, startTimeMs, 0)
	}

	stats.TotalRequests, _ = strconv.Atoi(totalReq)
	stats.FailedCount, _ = strconv.Atoi(totalErr)
	stats.RejectedInstructions, _ = strconv.Atoi(rejected)
	stats.SuccessCount = stats.TotalRequests - stats.FailedCount
	if stats.TotalRequests > 0 {
		stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(totalTime, 64)
	countSum, _ := strconv.Atoi(resCount)
	if countSum > 0 {
		stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(countSum), 'f', 2, 64)
	}
	if lastReqStr != "" {
		var lastReq map[string]interface{}
		_ = json.Unmarshal([]byte(lastReqStr), &lastReq)
		stats.LastRequest = lastReq
	}
	for name, v := range perInstruction {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats.Instructions[name] = n
		}
	}
	return startTimeMs
}
