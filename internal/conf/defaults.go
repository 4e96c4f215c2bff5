package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default pipeline thresholds
const (
	DefaultMinSpeciesConfidence   = 0.85
	DefaultMinDetectionConfidence = 0.80
	DefaultFrameSkip              = 5
	DefaultIntervalMinutes        = 5
	DefaultEdgeMargin             = 20
	DefaultBirdClassID            = 14
	DefaultFileRetentionDays      = 30
)

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("main.name", "birdhomie")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", true)
	v.SetDefault("logging.file_output.path", "logs/birdhomie.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("database.type", DatabaseSQLite)
	v.SetDefault("database.sqlite.path", "data/birdhomie.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", "3306")
	v.SetDefault("database.mysql.database", "birdhomie")
	v.SetDefault("database.slowqueryms", 200)

	v.SetDefault("storage.datadir", "data/clips")
	v.SetDefault("storage.outputdir", "data/output")

	v.SetDefault("processor.workers", 1)
	v.SetDefault("processor.frameskip", DefaultFrameSkip)
	v.SetDefault("processor.intervalminutes", DefaultIntervalMinutes)
	v.SetDefault("processor.mindetectionconfidence", DefaultMinDetectionConfidence)
	v.SetDefault("processor.minspeciesconfidence", DefaultMinSpeciesConfidence)
	v.SetDefault("processor.edgemargin", DefaultEdgeMargin)
	v.SetDefault("processor.annotate", true)
	v.SetDefault("processor.ffmpegpath", "ffmpeg")
	v.SetDefault("processor.ffprobepath", "ffprobe")
	v.SetDefault("processor.jpegquality", 90)

	v.SetDefault("models.detector.endpoint", "http://localhost:8500")
	v.SetDefault("models.detector.name", "yolov8n")
	v.SetDefault("models.detector.classid", DefaultBirdClassID)
	v.SetDefault("models.detector.timeout", 30*time.Second)
	v.SetDefault("models.classifier.endpoint", "http://localhost:8501")
	v.SetDefault("models.classifier.name", "bioclip-2")
	v.SetDefault("models.classifier.temperature", 100.0)
	v.SetDefault("models.classifier.timeout", 30*time.Second)

	v.SetDefault("taxonomy.baseurl", "https://api.inaturalist.org/v1")
	v.SetDefault("taxonomy.locale", "de")
	v.SetDefault("taxonomy.ratelimit", 500*time.Millisecond)
	v.SetDefault("taxonomy.timeout", 10*time.Second)
	v.SetDefault("taxonomy.cachettl", 24*time.Hour)

	v.SetDefault("scheduler.enabled", true)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "birdhomie")

	v.SetDefault("notify.enabled", false)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", "127.0.0.1:8090")

	v.SetDefault("sentry.enabled", false)

	v.SetDefault("fileretentiondays", DefaultFileRetentionDays)
}
