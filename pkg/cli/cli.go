package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaudRate は MIDI DIN 規格の転送速度
	DefaultBaudRate = 31250

	// DefaultLead は鍵盤に届くまでのノーツの落下時間（秒）
	DefaultLead = 3.0

	// DefaultDrillCount はドリル1回あたりの音符数
	DefaultDrillCount = 32
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	SongPaths     []string      // MIDIファイルまたはディレクトリのパス
	Difficulty    string        // 難易度（easy, medium, hard, expert）
	Speed         float64       // 再生速度（0.1〜2.0）
	Lead          float64       // ノーツの落下時間（秒）
	Policy        string        // 音高違いの打鍵の扱い（pitch-scoped, nearest-active）
	Parts         []int         // 練習するMIDIチャンネル（空は全チャンネル）
	Accompaniment bool          // 伴奏を鳴らす
	HearParts     bool          // 練習パートも伴奏として鳴らす
	ScoresPath    string        // ハイスコアファイルのパス（空はメモリのみ）
	SoundFont     string        // SF2ファイルのパス（空は自動検索）
	MIDIIn        string        // MIDI入力ポート名
	MIDIOut       string        // MIDI出力ポート名
	SerialOut     string        // シリアルMIDIインターフェースのデバイス名
	Baud          int           // シリアルの転送速度
	Drill         int           // ドリルのレベル（0は無効）
	DrillCount    int           // ドリルの音符数
	DrillInterval float64       // ドリルの音符間隔（秒）
	Seed          uint64        // ドリルの乱数シード（0は時刻から決定）
	ListPorts     bool          // MIDIポート一覧を表示して終了
	TUI           bool          // 端末UIで実行
	Timeout       time.Duration // タイムアウト時間（0は無制限）
	LogLevel      string        // ログレベル（debug, info, warn, error）
	Headless      bool          // ヘッドレスモード
	ShowHelp      bool          // ヘルプ表示フラグ
}

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"h":             true,
	"help":          true,
	"headless":      true,
	"tui":           true,
	"accompaniment": true,
	"a":             true,
	"hear-parts":    true,
	"list-ports":    true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("keyfall", flag.ContinueOnError)

	config := &Config{}

	var timeoutSec int
	var parts string
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.BoolVar(&config.TUI, "tui", false, "端末UIで実行")
	fs.StringVar(&config.Difficulty, "difficulty", "medium", "難易度")
	fs.StringVar(&config.Difficulty, "d", "medium", "難易度（短縮形）")
	fs.Float64Var(&config.Speed, "speed", 1.0, "再生速度")
	fs.Float64Var(&config.Lead, "lead", DefaultLead, "ノーツの落下時間（秒）")
	fs.StringVar(&config.Policy, "policy", "pitch-scoped", "音高違いの打鍵の扱い")
	fs.StringVar(&parts, "parts", "", "練習するMIDIチャンネル（カンマ区切り）")
	fs.BoolVar(&config.Accompaniment, "accompaniment", false, "伴奏を鳴らす")
	fs.BoolVar(&config.Accompaniment, "a", false, "伴奏を鳴らす（短縮形）")
	fs.BoolVar(&config.HearParts, "hear-parts", false, "練習パートも鳴らす")
	fs.StringVar(&config.ScoresPath, "scores", "", "ハイスコアファイルのパス")
	fs.StringVar(&config.SoundFont, "soundfont", "", "SF2ファイルのパス")
	fs.StringVar(&config.MIDIIn, "midi-in", "", "MIDI入力ポート名")
	fs.StringVar(&config.MIDIOut, "midi-out", "", "MIDI出力ポート名")
	fs.StringVar(&config.SerialOut, "serial", "", "シリアルMIDIデバイス")
	fs.IntVar(&config.Baud, "baud", DefaultBaudRate, "シリアルの転送速度")
	fs.IntVar(&config.Drill, "drill", 0, "ドリルのレベル（1〜5）")
	fs.IntVar(&config.DrillCount, "drill-count", DefaultDrillCount, "ドリルの音符数")
	fs.Float64Var(&config.DrillInterval, "drill-interval", 1.0, "ドリルの音符間隔（秒）")
	fs.Uint64Var(&config.Seed, "seed", 0, "ドリルの乱数シード")
	fs.BoolVar(&config.ListPorts, "list-ports", false, "MIDIポート一覧を表示")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	// ハイスコアファイル（フラグ、環境変数、既定の順）
	if config.ScoresPath == "" {
		config.ScoresPath = os.Getenv("KEYFALL_SCORES")
	}
	if config.ScoresPath == "" {
		config.ScoresPath = DefaultScoresPath()
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	// 数値の検証
	if config.Speed < 0.1 || config.Speed > 2.0 {
		return nil, fmt.Errorf("speed must be between 0.1 and 2.0, got %v", config.Speed)
	}
	if !(config.Lead > 0) {
		return nil, fmt.Errorf("lead must be positive, got %v", config.Lead)
	}
	if config.Baud <= 0 {
		return nil, fmt.Errorf("baud must be positive, got %d", config.Baud)
	}
	if config.Drill < 0 || config.Drill > 5 {
		return nil, fmt.Errorf("drill level must be between 1 and 5, got %d", config.Drill)
	}
	if config.Drill > 0 {
		if config.DrillCount <= 0 {
			return nil, fmt.Errorf("drill count must be positive, got %d", config.DrillCount)
		}
		if !(config.DrillInterval > 0) {
			return nil, fmt.Errorf("drill interval must be positive, got %v", config.DrillInterval)
		}
	}

	// 練習パートの解析
	channels, err := parseParts(parts)
	if err != nil {
		return nil, err
	}
	config.Parts = channels

	// 位置引数（MIDIファイルまたはディレクトリ）
	config.SongPaths = fs.Args()

	return config, nil
}

// DefaultScoresPath ユーザー設定ディレクトリ内のハイスコアファイルを返す
func DefaultScoresPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "scores.json"
	}
	return filepath.Join(dir, "keyfall", "scores.json")
}

// parseParts "0,9" 形式のチャンネル指定を解析する
func parseParts(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var channels []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		ch, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid part %q: %w", field, err)
		}
		if ch < 0 || ch > 15 {
			return nil, fmt.Errorf("part must be a MIDI channel 0-15, got %d", ch)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" 以降はすべて位置引数
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// --name=value 形式は次の引数を消費しない
			if strings.Contains(arg, "=") {
				continue
			}

			// 次の引数が値である可能性をチェック
			// （-t 5 のような場合）
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				// ブール型フラグでない場合は次の引数も追加
				if !boolFlags[strings.TrimLeft(arg, "-")] {
					i++
					flags = append(flags, args[i])
				}
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	if len(positional) == 0 {
		return flags
	}
	flags = append(flags, "--")
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `keyfall - MIDI practice engine

Usage:
  keyfall [options] [song.mid | song-directory ...]

Arguments:
  song          標準MIDIファイル、またはMIDIファイルを含むディレクトリ（複数可）
                複数の曲がある場合は選択画面を表示

Options:
  -d, --difficulty <name>     難易度: easy, medium, hard, expert（デフォルト: medium）
  --speed <rate>              再生速度 0.1〜2.0（デフォルト: 1.0）
  --lead <seconds>            ノーツの落下時間（デフォルト: 3）
  --policy <name>             音高違いの打鍵: pitch-scoped, nearest-active
  --parts <channels>          練習するMIDIチャンネル（例: 0,1）
  -a, --accompaniment         伴奏を鳴らす（練習パートは消音）
  --hear-parts                練習パートも伴奏として鳴らす
  --scores <path>             ハイスコアファイル
  --soundfont <path>          SF2ファイル（デフォルト: 自動検索）
  --midi-in <port>            MIDI入力ポート（部分一致）
  --midi-out <port>           MIDI出力ポート（部分一致）
  --serial <device>           シリアルMIDIインターフェース
  --baud <rate>               シリアルの転送速度（デフォルト: 31250）
  --drill <level>             音名当てドリル（レベル1〜5）
  --drill-count <n>           ドリルの音符数（デフォルト: 32）
  --drill-interval <seconds>  ドリルの音符間隔（デフォルト: 1）
  --seed <n>                  ドリルの乱数シード
  --list-ports                MIDIポート一覧を表示して終了
  --tui                       端末UIで実行
  -t, --timeout <seconds>     指定秒数後にセッションを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --headless                  ヘッドレスモード（GUIなし、MIDI入力のみ）
  -h, --help                  このヘルプを表示

Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル
  KEYFALL_SCORES=<path>       ハイスコアファイル

Examples:
  keyfall song.mid                      1曲を練習
  keyfall ./songs                       ディレクトリから曲を選択
  keyfall --parts 0 -a song.mid         チャンネル0を練習し、他のパートを伴奏に
  keyfall --drill 3                     レベル3のドリル
  keyfall --tui --speed 0.5 song.mid    端末UIで半分の速度
  keyfall --headless --midi-in piano -t 60 song.mid
`)
}
