package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/bootstrap"
	"github.com/zhouzirui/spatial-agent/backend/internal/config"
	"github.com/zhouzirui/spatial-agent/backend/internal/logger"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/codec"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

func main() {
	mode := flag.String("mode", "", "测试模式: asr, tts 或 turn")
	audioPath := flag.String("audio", "", "ASR/turn 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "输出音频文件路径 (默认自动生成)")
	format := flag.String("format", "", "输入音频格式，默认根据扩展名推断")
	voice := flag.String("voice", "", "TTS 声音，默认使用配置中的 voice")
	addr := flag.String("addr", "localhost:8000", "turn 模式连接的服务地址")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	log, err := logger.New("info", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := godotenv.Load(); err != nil {
		log.Warn("无法加载 .env，改用系统环境变量", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr", "tts":
		cfg, err := config.Load()
		if err != nil {
			log.Fatal("配置加载失败", zap.Error(err))
		}
		adapters, err := bootstrap.BuildAdapters(ctx, cfg, log)
		if err != nil {
			log.Fatal("适配器初始化失败", zap.Error(err))
		}
		if *mode == "asr" {
			runASR(ctx, log, adapters.Transcriber, *audioPath, *format)
			return
		}
		v := *voice
		if v == "" {
			v = cfg.Session.Voice
		}
		runTTS(ctx, log, adapters.Synthesizer, *text, v, *outputPath)
	case "turn":
		runTurn(ctx, log, *addr, *audioPath, *format, *outputPath)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=asr, -mode=tts 或 -mode=turn 指定测试模式")
	}
}

func readClip(log *zap.Logger, audioPath, format string) ([]byte, string) {
	if audioPath == "" {
		log.Fatal("需要通过 -audio 指定音频文件路径")
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatal("读取音频文件失败", zap.Error(err))
	}
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = codec.FormatWAV
		}
	}
	return data, format
}

func outputName(outputPath, prefix string) string {
	if outputPath != "" {
		return outputPath
	}
	return fmt.Sprintf("%s-%d.wav", prefix, time.Now().Unix())
}

func runASR(ctx context.Context, log *zap.Logger, t pipeline.Transcriber, audioPath, format string) {
	data, format := readClip(log, audioPath, format)
	log.Info("开始进行 ASR 测试", zap.String("format", format), zap.Int("bytes", len(data)))

	start := time.Now()
	text, err := t.Transcribe(ctx, pipeline.Audio{Data: data, Format: format})
	if err != nil {
		log.Fatal("ASR 调用失败", zap.Error(err))
	}
	log.Info("ASR 识别成功", zap.String("text", text), zap.Duration("elapsed", time.Since(start)))
}

func runTTS(ctx context.Context, log *zap.Logger, s pipeline.Synthesizer, text, voice, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	log.Info("开始进行 TTS 测试", zap.String("voice", voice))

	audio, err := s.Synthesize(ctx, text, voice)
	if err != nil {
		log.Fatal("TTS 调用失败", zap.Error(err))
	}
	out := outputName(outputPath, "tts-output")
	if err := os.WriteFile(out, audio, 0o644); err != nil {
		log.Fatal("写入音频文件失败", zap.Error(err))
	}
	log.Info("TTS 合成成功", zap.String("file", out), zap.Int("bytes", len(audio)))
}

// runTurn sends one clip over the session socket and waits for the reply.
func runTurn(ctx context.Context, log *zap.Logger, addr, audioPath, format, outputPath string) {
	data, format := readClip(log, audioPath, format)
	frame, err := codec.EncodeInbound(codec.InboundMessage{Audio: data, Format: format})
	if err != nil {
		log.Fatal("编码请求失败", zap.Error(err))
	}

	url := "ws://" + addr + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.Fatal("连接失败", zap.String("url", url), zap.Error(err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	start := time.Now()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Fatal("发送音频失败", zap.Error(err))
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		log.Fatal("等待回复失败", zap.Error(err))
	}
	reply, err := codec.DecodeOutbound(payload)
	if err != nil {
		log.Fatal("解析回复失败", zap.Error(err))
	}

	log.Info("收到回复",
		zap.String("text", reply.Text),
		zap.Int("audio_bytes", len(reply.Audio)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if len(reply.Audio) == 0 {
		return
	}
	out := outputName(outputPath, "turn-reply")
	if err := os.WriteFile(out, reply.Audio, 0o644); err != nil {
		log.Fatal("写入音频文件失败", zap.Error(err))
	}
	log.Info("回复音频已保存", zap.String("file", out))
}
