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
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsReader   int64
	errorsDecoder  int64
	warnsReader    int64
	warnsDecoder   int64
	framesRead     int64
	recordsDecoded int64
	decodeSkips    int64
	s3Writes       int64
	kafkaWrites    int64
	channels       sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&warnsReader, 1)
	} else if strings.Contains(component, "decoder") {
		atomic.AddInt64(&warnsDecoder, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&errorsReader, 1)
	} else if strings.Contains(component, "decoder") {
		atomic.AddInt64(&errorsDecoder, 1)
	}
}

// IncrementFrameRead counts one binary frame received from the feed.
func IncrementFrameRead(size int) {
	atomic.AddInt64(&framesRead, 1)
	recordChannel("frame_ws", size)
}

// IncrementRecordsDecoded counts records that survived decoding.
func IncrementRecordsDecoded(n int) {
	atomic.AddInt64(&recordsDecoded, int64(n))
}

// IncrementDecodeSkips counts chunks dropped by the decoder.
func IncrementDecodeSkips(n int) {
	atomic.AddInt64(&decodeSkips, int64(n))
}

func IncrementS3Write(size int64) {
	atomic.AddInt64(&s3Writes, 1)
	recordChannel("s3_write", int(size))
}

func IncrementKafkaWrite(size int) {
	atomic.AddInt64(&kafkaWrites, 1)
	recordChannel("kafka_write", size)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
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

// StartReport begins periodic logging of system and channel statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
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
		"errors_reader":   atomic.LoadInt64(&errorsReader),
		"errors_decoder":  atomic.LoadInt64(&errorsDecoder),
		"warns_reader":    atomic.LoadInt64(&warnsReader),
		"warns_decoder":   atomic.LoadInt64(&warnsDecoder),
		"frames_read":     atomic.LoadInt64(&framesRead),
		"records_decoded": atomic.LoadInt64(&recordsDecoded),
		"decode_skips":    atomic.LoadInt64(&decodeSkips),
		"s3_writes":       atomic.LoadInt64(&s3Writes),
		"kafka_writes":    atomic.LoadInt64(&kafkaWrites),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"channels":        channelData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-ErrorsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-ErrorsDecoder"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_decoder"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-WarnsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-WarnsDecoder"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_decoder"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-FramesRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["frames_read"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-RecordsDecoded"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["records_decoded"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-DecodeSkips"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["decode_skips"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-S3Writes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["s3_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-KafkaWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["kafka_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Dexflow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Dexflow-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Dexflow-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
