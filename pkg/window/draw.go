package window

import (
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/scheduler"
	"github.com/zurustar/keyfall/pkg/score"
	"github.com/zurustar/keyfall/pkg/scoring"
	"golang.org/x/image/font/basicfont"
)

var (
	backgroundColor   = color.RGBA{0x10, 0x14, 0x24, 0xFF}
	laneColor         = color.RGBA{0x1A, 0x20, 0x38, 0xFF}
	sharpLaneColor    = color.RGBA{0x14, 0x18, 0x2C, 0xFF}
	hitLineColor      = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	activeNoteColor   = color.RGBA{0x00, 0x87, 0xC8, 0xFF}
	hitNoteColor      = color.RGBA{0x40, 0xD0, 0x60, 0xFF}
	missedNoteColor   = color.RGBA{0x60, 0x60, 0x60, 0xFF}
	wrongNoteColor    = color.RGBA{0xE0, 0x40, 0x40, 0xFF}
	whiteKeyColor     = color.RGBA{0xF0, 0xF0, 0xF0, 0xFF}
	blackKeyColor     = color.RGBA{0x20, 0x20, 0x20, 0xFF}
	heldKeyColor      = color.RGBA{0xFF, 0xD7, 0x00, 0xFF}
	textColor         = color.White
	selectedTextColor = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	defaultFace       = text.NewGoXFace(basicfont.Face7x13)
)

const (
	laneMargin = 20
	hitLineY   = 640
	keyboardY  = 660
	minNoteH   = 6
)

// laneLayout は鍵盤の範囲と各レーンの横位置
type laneLayout struct {
	low, high int
	width     float32
}

// newLaneLayout は曲の音域をオクターブ単位に広げたレイアウトを作る
func newLaneLayout(events []score.Event) laneLayout {
	low, high := 48, 72
	if len(events) > 0 {
		low, high = events[0].Pitch, events[0].Pitch
		for _, ev := range events {
			low = min(low, ev.Pitch)
			high = max(high, ev.Pitch)
		}
		low -= low % 12
		high += 11 - high%12
		if high-low < 24 {
			high = low + 24
		}
	}
	lanes := high - low + 1
	return laneLayout{
		low:   low,
		high:  high,
		width: float32(screenWidth-2*laneMargin) / float32(lanes),
	}
}

// laneX はピッチのレーン左端を返す。範囲外ならfalse
func (l laneLayout) laneX(pitch int) (float32, bool) {
	if pitch < l.low || pitch > l.high {
		return 0, false
	}
	return laneMargin + float32(pitch-l.low)*l.width, true
}

// noteRect は時刻tにおけるノートの矩形を返す。下端がターゲットで判定線に達する
func (l laneLayout) noteRect(n *scheduler.FallingNote, t float64) (x, y, w, h float32, ok bool) {
	x, ok = l.laneX(n.Pitch)
	if !ok {
		return 0, 0, 0, 0, false
	}
	lead := n.TargetTime - n.SpawnTime
	bottom := float32(n.Progress(t)) * hitLineY
	h = minNoteH
	if lead > 0 {
		h = max(minNoteH, float32((n.EndTime-n.TargetTime)/lead)*hitLineY)
	}
	return x + 1, bottom - h, l.width - 2, h, true
}

func isSharp(pitch int) bool {
	switch pitch % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}

func noteColor(s scheduler.Status) color.Color {
	switch s {
	case scheduler.Hit:
		return hitNoteColor
	case scheduler.Missed:
		return missedNoteColor
	case scheduler.Wrong:
		return wrongNoteColor
	default:
		return activeNoteColor
	}
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	switch g.mode {
	case ModeSelection:
		g.drawSelection(screen)
	case ModePlay:
		g.drawPlay(screen)
	case ModeResult:
		g.drawResult(screen)
	}
}

func drawText(screen *ebiten.Image, s string, x, y float64, clr color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, s, defaultFace, op)
}

// drawSelection 曲選択画面の描画
func (g *Game) drawSelection(screen *ebiten.Image) {
	drawText(screen, "Select a song", 50, 50, textColor)

	for i, e := range g.entries {
		prefix := "  "
		clr := color.Color(textColor)
		if i == g.selectedIndex {
			prefix = "> "
			clr = selectedTextColor
		}
		drawText(screen, prefix+e.Name, 70, 120+float64(i*40), clr)
	}

	drawText(screen, "Use UP/DOWN to select, ENTER to play, ESC to exit", 50, 650, textColor)
}

// drawPlay 演奏画面の描画
func (g *Game) drawPlay(screen *ebiten.Image) {
	g.mu.RLock()
	p := g.player
	lanes := g.lanes
	g.mu.RUnlock()
	if p == nil {
		return
	}

	for pitch := lanes.low; pitch <= lanes.high; pitch++ {
		x, _ := lanes.laneX(pitch)
		clr := laneColor
		if isSharp(pitch) {
			clr = sharpLaneColor
		}
		vector.FillRect(screen, x, 0, lanes.width, hitLineY, clr, false)
	}

	t := p.Time()
	for _, n := range p.ActiveNotes() {
		x, y, w, h, ok := lanes.noteRect(n, t)
		if !ok {
			continue
		}
		vector.FillRect(screen, x, y, w, h, noteColor(n.Status), false)
	}
	vector.StrokeLine(screen, laneMargin, hitLineY, screenWidth-laneMargin, hitLineY, 2, hitLineColor, false)

	held := make(map[int]bool, len(g.held))
	for _, pitch := range g.held {
		held[pitch] = true
	}
	for pitch := lanes.low; pitch <= lanes.high; pitch++ {
		x, _ := lanes.laneX(pitch)
		clr := whiteKeyColor
		if isSharp(pitch) {
			clr = blackKeyColor
		}
		if held[pitch] {
			clr = heldKeyColor
		}
		vector.FillRect(screen, x+1, keyboardY, lanes.width-2, screenHeight-keyboardY-10, clr, false)
	}

	for i, line := range hudLines(p.State(), t, p.Speed(), g.keymap.Octave(), p.Paused()) {
		drawText(screen, line, 30, 20+float64(i*16), textColor)
	}
	if label := g.last.label(time.Now()); label != "" {
		drawText(screen, label, screenWidth/2-30, hitLineY-60, selectedTextColor)
	}
}

// label は表示期間中の判定文字列を返す
func (f feedback) label(now time.Time) string {
	if f.at.IsZero() || now.Sub(f.at) > feedbackDuration {
		return ""
	}
	if f.missed {
		return "MISS"
	}
	switch f.result {
	case matcher.Perfect:
		return "PERFECT"
	case matcher.Good:
		return "GOOD"
	case matcher.Hit:
		return "HIT"
	case matcher.Wrong:
		return "WRONG"
	}
	return ""
}

// hudLines はプレイ中に左上へ表示する情報
func hudLines(st scoring.State, t, speed float64, octave int, paused bool) []string {
	lines := []string{
		fmt.Sprintf("Score    %d", st.Score),
		fmt.Sprintf("Combo    %d (max %d)", st.Combo, st.MaxCombo),
		fmt.Sprintf("Accuracy %.1f%%", st.Accuracy()*100),
		fmt.Sprintf("Time     %.1fs", t),
		fmt.Sprintf("Speed    x%.1f  Octave %+d", speed, octave),
	}
	if paused {
		lines = append(lines, "PAUSED (SPACE to resume)")
	}
	return lines
}

// drawResult 結果画面の描画
func (g *Game) drawResult(screen *ebiten.Image) {
	g.mu.RLock()
	sum := g.summary
	g.mu.RUnlock()
	if sum == nil {
		return
	}
	for i, line := range SummaryLines(*sum) {
		drawText(screen, line, 80, 80+float64(i*24), textColor)
	}
	drawText(screen, "Press ENTER or ESC to exit", 80, 650, textColor)
}

// SummaryLines はセッション結果を表示用の行に整形する
func SummaryLines(sum scoring.Summary) []string {
	lines := []string{
		fmt.Sprintf("Song        %s", sum.SongID),
		fmt.Sprintf("Difficulty  %s (x%.1f)", sum.Difficulty, sum.Multiplier),
		fmt.Sprintf("Score       %d", sum.Score),
		fmt.Sprintf("Accuracy    %.1f%%", sum.Accuracy*100),
		fmt.Sprintf("Max combo   %d", sum.MaxCombo),
		fmt.Sprintf("Perfect %d  Good %d  Hit %d  Missed %d  Wrong %d",
			sum.Perfect, sum.Good, sum.Hit, sum.Missed, sum.Wrong),
		fmt.Sprintf("Played      %.1fs", sum.SessionTime),
	}
	if sum.Rank > 0 {
		lines = append(lines, fmt.Sprintf("New high score! Rank #%d", sum.Rank))
	}
	if sum.PersistErr != nil {
		lines = append(lines, fmt.Sprintf("High scores could not be saved: %v", sum.PersistErr))
	}
	return lines
}
