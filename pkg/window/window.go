package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/zurustar/keyfall/pkg/input"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/scheduler"
	"github.com/zurustar/keyfall/pkg/score"
	"github.com/zurustar/keyfall/pkg/scoring"
	"github.com/zurustar/keyfall/pkg/session"
)

const (
	screenWidth  = 1024
	screenHeight = 768

	// speedStep は左右キー1回あたりの再生速度の変化量
	speedStep = 0.1

	// feedbackDuration は判定表示を残す時間
	feedbackDuration = 600 * time.Millisecond
)

// Mode はウィンドウの表示モードを表す
type Mode int

const (
	ModeSelection Mode = iota // 曲選択画面
	ModePlay                  // 演奏画面
	ModeResult                // 結果画面
)

// Entry は選択画面に表示する曲
type Entry struct {
	Name string
	Path string
}

// Player は演奏画面が必要とするセッション操作
type Player interface {
	Start()
	Tick() session.Report
	Press(pitch, velocity int, source input.Source) error
	Release(pitch int, source input.Source) error
	TogglePause()
	Paused() bool
	SetSpeed(speed float64)
	Speed() float64
	Stop() scoring.Summary
	ActiveNotes() []*scheduler.FallingNote
	State() scoring.State
	Time() float64
	SongID() string
	Score() *score.Score
}

var _ Player = (*session.Session)(nil)

// feedback は直近の判定表示
type feedback struct {
	result matcher.Result
	missed bool
	at     time.Time
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	mode          Mode          // 現在のモード
	entries       []Entry       // 選択可能な曲一覧
	selectedIndex int           // 選択中の曲のインデックス
	selected      *Entry        // 選択された曲
	timeout       time.Duration // タイムアウト時間
	startTime     time.Time     // 開始時刻

	player        Player
	playerStarted bool
	keymap        *input.KeyMap
	held          map[ebiten.Key]int // 押下中のキーと発音中のピッチ
	lanes         laneLayout
	last          feedback
	summary       *scoring.Summary

	// 曲選択時のコールバック（選択画面 -> 演奏画面の遷移）
	onSelected      func(entry *Entry) (Player, error)
	transitionError error // モード遷移時のエラー

	mu sync.RWMutex
}

// NewGame Gameを作成
func NewGame(mode Mode, entries []Entry, timeout time.Duration) *Game {
	return &Game{
		mode:      mode,
		entries:   entries,
		timeout:   timeout,
		startTime: time.Now(),
		keymap:    input.DefaultKeyMap(),
		held:      make(map[ebiten.Key]int),
		lanes:     newLaneLayout(nil),
	}
}

// SetPlayer 演奏するセッションを設定する
func (g *Game) SetPlayer(p Player) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.player = p
	g.playerStarted = false
	if p != nil && p.Score() != nil {
		g.lanes = newLaneLayout(p.Score().Events)
	}
}

// SetKeyMap キーボード配列を設定する
func (g *Game) SetKeyMap(k *input.KeyMap) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keymap = k
}

// SetOnSelected 曲が選択されたときのコールバックを設定する
func (g *Game) SetOnSelected(callback func(entry *Entry) (Player, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onSelected = callback
}

// GetTransitionError モード遷移中に発生したエラーを返す
func (g *Game) GetTransitionError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transitionError
}

// GetSelected 選択された曲を返す
func (g *Game) GetSelected() *Entry {
	return g.selected
}

// Summary 終了したセッションの結果を返す（未終了ならnil）
func (g *Game) Summary() *scoring.Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.summary
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.timeout > 0 && time.Since(g.startTime) >= g.timeout {
		g.finish()
		return ebiten.Termination
	}

	switch g.mode {
	case ModeSelection:
		return g.updateSelection()
	case ModePlay:
		return g.updatePlay()
	case ModeResult:
		return g.updateResult()
	}
	return nil
}

// updateSelection 曲選択画面の更新
func (g *Game) updateSelection() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) && g.selectedIndex > 0 {
		g.selectedIndex--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) && g.selectedIndex < len(g.entries)-1 {
		g.selectedIndex++
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) && len(g.entries) > 0 {
		return g.choose(g.selectedIndex)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	return nil
}

// choose 曲を確定して演奏画面に遷移する
func (g *Game) choose(index int) error {
	g.selected = &g.entries[index]

	g.mu.RLock()
	callback := g.onSelected
	g.mu.RUnlock()

	if callback == nil {
		return ebiten.Termination
	}

	p, err := callback(g.selected)
	if err != nil {
		g.mu.Lock()
		g.transitionError = err
		g.mu.Unlock()
		return ebiten.Termination
	}

	g.SetPlayer(p)
	g.mu.Lock()
	g.mode = ModePlay
	g.startTime = time.Now() // タイムアウトをリセット
	g.mu.Unlock()
	return nil
}

// updatePlay 演奏画面の更新
// 入力をキューに積んでからTickするため、同じフレームの打鍵は判定に間に合う
func (g *Game) updatePlay() error {
	g.mu.Lock()
	p := g.player
	if p != nil && !g.playerStarted {
		g.playerStarted = true
		p.Start()
	}
	g.mu.Unlock()

	if p == nil {
		return nil
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.finish()
		return nil
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		p.TogglePause()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		g.keymap.ShiftOctave(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		g.keymap.ShiftOctave(-1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		p.SetSpeed(p.Speed() + speedStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		p.SetSpeed(p.Speed() - speedStep)
	}

	g.processKeyboardEvents(p)

	report := p.Tick()
	g.applyReport(report, time.Now())
	if report.Completed {
		g.finish()
	}
	return nil
}

// processKeyboardEvents は鍵盤キーの押下と解放をセッションに伝達する
func (g *Game) processKeyboardEvents(p Player) {
	for _, k := range pianoKeys {
		if inpututil.IsKeyJustPressed(k.key) {
			if pitch, ok := g.keymap.Pitch(k.char); ok {
				g.held[k.key] = pitch
				g.report(p.Press(pitch, input.KeyboardVelocity, input.SourceKeyboard))
			}
		}
		if inpututil.IsKeyJustReleased(k.key) {
			// オクターブ変更後でも押下時のピッチを解放する
			if pitch, ok := g.held[k.key]; ok {
				delete(g.held, k.key)
				g.report(p.Release(pitch, input.SourceKeyboard))
			}
		}
	}
}

func (g *Game) report(err error) {
	if err != nil {
		logger.GetLogger().Debug("Keyboard input rejected", "error", err)
	}
}

// applyReport は判定結果を表示用に保存する
func (g *Game) applyReport(r session.Report, now time.Time) {
	for _, m := range r.Matches {
		if m.Result != matcher.NoMatch {
			g.last = feedback{result: m.Result, at: now}
		}
	}
	if len(r.Missed) > 0 {
		g.last = feedback{missed: true, at: now}
	}
}

// finish はセッションを終了して結果画面に遷移する
func (g *Game) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.player == nil || g.summary != nil {
		return
	}
	sum := g.player.Stop()
	g.summary = &sum
	g.mode = ModeResult
}

// updateResult 結果画面の更新
func (g *Game) updateResult() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	return nil
}

// Layout 画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

// Run GUIモードでウィンドウを実行
func Run(g *Game, title string) error {
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(g); err != nil {
		return fmt.Errorf("failed to run game: %w", err)
	}
	return g.GetTransitionError()
}

// pianoKeys は鍵盤として使うキーと配列上の文字
var pianoKeys = []struct {
	key  ebiten.Key
	char rune
}{
	{ebiten.KeyZ, 'z'}, {ebiten.KeyS, 's'}, {ebiten.KeyX, 'x'}, {ebiten.KeyD, 'd'},
	{ebiten.KeyC, 'c'}, {ebiten.KeyV, 'v'}, {ebiten.KeyG, 'g'}, {ebiten.KeyB, 'b'},
	{ebiten.KeyH, 'h'}, {ebiten.KeyN, 'n'}, {ebiten.KeyJ, 'j'}, {ebiten.KeyM, 'm'},
	{ebiten.KeyQ, 'q'}, {ebiten.KeyDigit2, '2'}, {ebiten.KeyW, 'w'}, {ebiten.KeyDigit3, '3'},
	{ebiten.KeyE, 'e'}, {ebiten.KeyR, 'r'}, {ebiten.KeyDigit5, '5'}, {ebiten.KeyT, 't'},
	{ebiten.KeyDigit6, '6'}, {ebiten.KeyY, 'y'}, {ebiten.KeyDigit7, '7'}, {ebiten.KeyU, 'u'},
	{ebiten.KeyI, 'i'},
}
