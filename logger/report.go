package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type stageStat struct {
	items int64
	bytes int64
}

var (
	errorsFetch   int64
	errorsScan    int64
	warnsFetch    int64
	warnsScan     int64
	fetches       int64
	evaluations   int64
	signalsFound  int64
	rowsPersisted int64
	stages        sync.Map // map[string]*stageStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "fetch") {
		atomic.AddInt64(&warnsFetch, 1)
	} else {
		atomic.AddInt64(&warnsScan, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "fetch") {
		atomic.AddInt64(&errorsFetch, 1)
	} else {
		atomic.AddInt64(&errorsScan, 1)
	}
}

func IncrementFetch(size int) {
	atomic.AddInt64(&fetches, 1)
	recordStage("history_fetch", size)
}

func IncrementEvaluation() {
	atomic.AddInt64(&evaluations, 1)
}

func IncrementSignals(count int) {
	atomic.AddInt64(&signalsFound, int64(count))
}

func IncrementPersist(rows int) {
	atomic.AddInt64(&rowsPersisted, int64(rows))
	recordStage("metric_persist", rows)
}

func RecordStageItem(name string, size int) {
	recordStage(name, size)
}

func recordStage(name string, size int) {
	v, _ := stages.LoadOrStore(name, &stageStat{})
	ss := v.(*stageStat)
	atomic.AddInt64(&ss.items, 1)
	atomic.AddInt64(&ss.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	stageData := map[string]map[string]int64{}
	stages.Range(func(k, v any) bool {
		name := k.(string)
		ss := v.(*stageStat)
		stageData[name] = map[string]int64{
			"items": atomic.LoadInt64(&ss.items),
			"bytes": atomic.LoadInt64(&ss.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_fetch":   atomic.LoadInt64(&errorsFetch),
		"errors_scan":    atomic.LoadInt64(&errorsScan),
		"warns_fetch":    atomic.LoadInt64(&warnsFetch),
		"warns_scan":     atomic.LoadInt64(&warnsScan),
		"fetches":        atomic.LoadInt64(&fetches),
		"evaluations":    atomic.LoadInt64(&evaluations),
		"signals_found":  atomic.LoadInt64(&signalsFound),
		"rows_persisted": atomic.LoadInt64(&rowsPersisted),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memStats.Used) / 1024 / 1024,
		"disk_mb":        int64(diskStats.Used) / 1024 / 1024,
		"stages":         stageData,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Scan-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-ErrorsFetch"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_fetch"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-ErrorsScan"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_scan"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-WarnsFetch"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_fetch"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-WarnsScan"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_scan"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-Fetches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["fetches"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-Evaluations"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["evaluations"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-SignalsFound"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["signals_found"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-RowsPersisted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["rows_persisted"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Scan-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range stageData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Scan-StageItems"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["items"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Scan-StageBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
