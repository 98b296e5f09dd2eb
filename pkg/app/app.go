package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/zurustar/keyfall/pkg/cli"
	"github.com/zurustar/keyfall/pkg/drill"
	"github.com/zurustar/keyfall/pkg/fileutil"
	"github.com/zurustar/keyfall/pkg/highscore"
	"github.com/zurustar/keyfall/pkg/input"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/loop"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/score"
	"github.com/zurustar/keyfall/pkg/scoring"
	"github.com/zurustar/keyfall/pkg/session"
	"github.com/zurustar/keyfall/pkg/synth"
	"github.com/zurustar/keyfall/pkg/tui"
	"github.com/zurustar/keyfall/pkg/window"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config  *cli.Config
	log     *slog.Logger
	entries []window.Entry
	store   scoring.Store
	output  synth.Sink    // モニターと伴奏の出力先
	device  *input.Device // MIDI入力（未使用ならnil）

	stdin  io.Reader
	stdout io.Writer
}

// New Applicationを作成
func New() *Application {
	return &Application{
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if app.config.ListPorts {
		app.printPorts()
		return nil
	}

	app.log.Info("Application started")

	// 3. 曲の一覧を作成
	if err := app.loadEntries(); err != nil {
		return fmt.Errorf("failed to load songs: %w", err)
	}
	app.log.Info("Songs found", "count", len(app.entries))

	// 4. ハイスコアの保存先
	app.openStore()

	// 5. 音の出力先
	if err := app.openOutputs(); err != nil {
		return fmt.Errorf("failed to open outputs: %w", err)
	}
	defer app.close()

	// 6. セッションの実行
	sum, err := app.runSession()
	if err != nil {
		return err
	}

	// 7. 結果の表示
	if sum != nil {
		for _, line := range window.SummaryLines(*sum) {
			fmt.Fprintln(app.stdout, line)
		}
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLogger(app.config.LogLevel); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// printPorts MIDIポートの一覧を表示
func (app *Application) printPorts() {
	fmt.Fprintln(app.stdout, "MIDI inputs:")
	for _, name := range input.ListInPorts() {
		fmt.Fprintf(app.stdout, "  %s\n", name)
	}
	fmt.Fprintln(app.stdout, "MIDI outputs:")
	for _, name := range synth.ListOutPorts() {
		fmt.Fprintf(app.stdout, "  %s\n", name)
	}
}

// loadEntries 曲の一覧を作成する（ドリルの場合は1件）
func (app *Application) loadEntries() error {
	if app.config.Drill > 0 {
		app.entries = []window.Entry{{Name: drill.Title(app.config.Drill)}}
		return nil
	}

	if len(app.config.SongPaths) == 0 {
		return errors.New("no songs given (pass MIDI files or directories, or --drill)")
	}

	paths, err := fileutil.ExpandSongPaths(app.config.SongPaths)
	if err != nil {
		return err
	}
	app.entries = make([]window.Entry, 0, len(paths))
	for _, p := range paths {
		app.entries = append(app.entries, window.Entry{Name: filepath.Base(p), Path: p})
	}
	return nil
}

// openStore ハイスコアの保存先を開く（パスが空ならメモリのみ）
func (app *Application) openStore() {
	if app.config.ScoresPath == "" {
		app.log.Warn("No high-score file configured, scores are kept in memory")
		app.store = highscore.NewMemoryStore(nil)
		return
	}
	app.log.Debug("High-score file", "path", app.config.ScoresPath)
	app.store = highscore.NewFileStore(app.config.ScoresPath)
}

// openOutputs シリアル、MIDI出力ポート、SoundFontの順に出力先を開く
func (app *Application) openOutputs() error {
	var sinks synth.Multi

	if app.config.SerialOut != "" {
		s, err := synth.OpenSerial(app.config.SerialOut, app.config.Baud, app.log)
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}

	if app.config.MIDIOut != "" {
		p, err := synth.OpenPort(app.config.MIDIOut, app.log)
		if err != nil {
			sinks.Close()
			return err
		}
		sinks = append(sinks, p)
	}

	// ヘッドレスモードでは内蔵シンセサイザーを使わない
	if len(sinks) == 0 && !app.config.Headless {
		if m := app.openSynthesizer(); m != nil {
			sinks = append(sinks, m)
		}
	}

	if len(sinks) == 0 {
		app.output = synth.Null{}
		return nil
	}
	app.output = sinks
	return nil
}

// openSynthesizer SoundFontを探して内蔵シンセサイザーを開く
func (app *Application) openSynthesizer() synth.Sink {
	songDir := ""
	if len(app.entries) > 0 && app.entries[0].Path != "" {
		songDir = filepath.Dir(app.entries[0].Path)
	}

	path, err := findSoundFont(app.config.SoundFont, songDir)
	if err != nil {
		app.log.Warn("SoundFont not available, playing silently", "error", err)
		return nil
	}

	m, err := synth.NewMeltySink(path, nil)
	if err != nil {
		app.log.Warn("Failed to start synthesizer, playing silently", "path", path, "error", err)
		return nil
	}
	app.log.Info("SoundFont loaded", "path", path)
	return m
}

// close 開いた入出力を閉じる
func (app *Application) close() {
	if app.device != nil {
		app.device.Close()
	}
	if app.output != nil {
		if err := app.output.Close(); err != nil {
			app.log.Warn("Failed to close output", "error", err)
		}
	}
}

// sessionConfig コマンドライン設定からセッション設定を作る
func (app *Application) sessionConfig() (session.Config, error) {
	c := app.config
	cfg := session.DefaultConfig()

	policy, err := matcher.ParsePolicy(c.Policy)
	if err != nil {
		return cfg, err
	}
	cfg.Policy = policy
	cfg.Difficulty = scoring.ParseDifficulty(c.Difficulty)
	cfg.Speed = c.Speed
	cfg.FallSpeed = cfg.FallDistance / c.Lead
	cfg.Parts = c.Parts
	cfg.Accompaniment = c.Accompaniment
	cfg.MuteParts = !c.HearParts

	return cfg, cfg.Validate()
}

// loadScore 曲を読み込む（ドリルの場合は生成する）
func (app *Application) loadScore(entry *window.Entry) (*score.Score, error) {
	if app.config.Drill > 0 {
		seed := app.config.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		return drill.Generate(app.config.Drill, app.config.DrillCount, app.config.DrillInterval, seed)
	}
	return score.LoadFile(entry.Path, score.WithLogger(app.log))
}

// newSession 選択された曲のセッションを作る
func (app *Application) newSession(entry *window.Entry) (*session.Session, error) {
	sc, err := app.loadScore(entry)
	if err != nil {
		return nil, err
	}

	cfg, err := app.sessionConfig()
	if err != nil {
		return nil, err
	}

	sess, err := session.New(sc, cfg,
		session.WithLogger(app.log),
		session.WithScoringOptions(scoring.WithStore(app.store), scoring.WithLogger(app.log)),
		session.WithMonitor(app.output),
		session.WithAccompanimentSink(app.output),
	)
	if err != nil {
		return nil, err
	}

	if err := app.openDevice(sess); err != nil {
		return nil, err
	}

	app.log.Info("Session ready", "song", sess.SongID(), "notes", len(sc.Events), "difficulty", cfg.Difficulty)
	return sess, nil
}

// openDevice MIDI入力をセッションのキューにつなぐ
func (app *Application) openDevice(sess *session.Session) error {
	if app.config.MIDIIn == "" {
		return nil
	}
	port, err := input.FindInPort(app.config.MIDIIn)
	if err != nil {
		return err
	}
	d, err := input.OpenDevice(port, sess.Queue(), sess.Clock(), input.WithDeviceLogger(app.log))
	if err != nil {
		return err
	}
	app.device = d
	return nil
}

// runSession 表示モードに応じてセッションを実行する
func (app *Application) runSession() (*scoring.Summary, error) {
	switch {
	case app.config.Headless:
		return app.runHeadless()
	case app.config.TUI:
		return app.runTUI()
	default:
		return app.runWindow()
	}
}

// runHeadless 標準入出力で曲を選び、一定間隔のティックで演奏する
func (app *Application) runHeadless() (*scoring.Summary, error) {
	entry, err := window.SelectHeadless(app.entries, app.config.Timeout, app.stdin, app.stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to select song: %w", err)
	}

	sess, err := app.newSession(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if app.device == nil {
		app.log.Warn("Headless mode without MIDI input, every note will be missed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sum := playHeadless(ctx, sess, app.config.Timeout, app.log)
	return &sum, nil
}

// playHeadless セッションが終わるか、タイムアウトか、ctxが終了するまでティックを進める
func playHeadless(ctx context.Context, sess *session.Session, timeout time.Duration, log *slog.Logger) scoring.Summary {
	sess.Start()

	ticker := loop.NewTicker(loop.DefaultInterval, func() bool {
		return sess.Tick().Completed
	})
	ticker.Start()
	log.Debug("Headless loop started", "interval", ticker.Interval(), "timeout", timeout)

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ticker.Done():
		log.Info("Session completed")
	case <-deadline:
		log.Info("Timeout reached, terminating", "timeout", timeout)
	case <-ctx.Done():
		log.Info("Interrupted, terminating")
	}

	ticker.Stop()
	return sess.Stop()
}

// runTUI 端末UIで演奏する（曲が複数の場合は標準入出力で選択）
func (app *Application) runTUI() (*scoring.Summary, error) {
	entry, err := window.SelectHeadless(app.entries, app.config.Timeout, app.stdin, app.stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to select song: %w", err)
	}

	sess, err := app.newSession(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return tui.Run(sess, input.DefaultKeyMap(), app.config.Timeout)
}

// runWindow GUIで曲を選択して演奏する
func (app *Application) runWindow() (*scoring.Summary, error) {
	var game *window.Game

	// 曲が1つの場合は選択画面を省略
	if len(app.entries) == 1 {
		sess, err := app.newSession(&app.entries[0])
		if err != nil {
			return nil, fmt.Errorf("failed to start session: %w", err)
		}
		game = window.NewGame(window.ModePlay, app.entries, app.config.Timeout)
		game.SetPlayer(sess)
	} else {
		game = window.NewGame(window.ModeSelection, app.entries, app.config.Timeout)
		game.SetOnSelected(func(entry *window.Entry) (window.Player, error) {
			sess, err := app.newSession(entry)
			if err != nil {
				return nil, err
			}
			return sess, nil
		})
	}

	if err := window.Run(game, "keyfall"); err != nil {
		return nil, err
	}
	return game.Summary(), nil
}
