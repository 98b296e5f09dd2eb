package window

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// SelectHeadless ヘッドレスモードで曲選択を実行
func SelectHeadless(entries []Entry, timeout time.Duration, reader io.Reader, writer io.Writer) (*Entry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no songs available")
	}

	// 曲が1つの場合は自動選択
	if len(entries) == 1 {
		fmt.Fprintf(writer, "Auto-selecting song: %s\n", entries[0].Name)
		return &entries[0], nil
	}

	// タイムアウト処理用のコンテキスト
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fmt.Fprintln(writer, "Available songs:")
	for i, e := range entries {
		fmt.Fprintf(writer, "  %d: %s\n", i+1, e.Name)
	}
	fmt.Fprintln(writer)

	scanner := bufio.NewScanner(reader)
	resultCh := make(chan *Entry, 1)
	errCh := make(chan error, 1)

	go func() {
		for {
			fmt.Fprint(writer, "Select a song (1-", len(entries), ") or 'q' to quit: ")
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					errCh <- fmt.Errorf("failed to read input: %w", err)
				} else {
					errCh <- fmt.Errorf("input closed")
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "q" || line == "Q" {
				errCh <- fmt.Errorf("user cancelled")
				return
			}

			num, err := strconv.Atoi(line)
			if err != nil {
				fmt.Fprintln(writer, "Invalid input. Please enter a number.")
				continue
			}
			if num < 1 || num > len(entries) {
				fmt.Fprintf(writer, "Invalid selection. Please enter a number between 1 and %d.\n", len(entries))
				continue
			}

			selected := &entries[num-1]
			fmt.Fprintf(writer, "Selected: %s\n", selected.Name)
			resultCh <- selected
			return
		}
	}()

	// タイムアウトまたは選択完了を待つ
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout")
	case err := <-errCh:
		return nil, err
	case selected := <-resultCh:
		return selected, nil
	}
}
