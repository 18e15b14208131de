package main

import (
	"bufio"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// writeQR prints content as a QR code made of half-block characters, two
// bitmap rows per terminal line.
func writeQR(w io.Writer, content string) error {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, line := range halfBlocks(qr.Bitmap()) {
		_, _ = bw.WriteString("  " + line + "\n")
	}
	return bw.Flush()
}

func halfBlocks(bitmap [][]bool) []string {
	lines := make([]string, 0, (len(bitmap)+1)/2)
	for y := 0; y < len(bitmap); y += 2 {
		line := make([]rune, len(bitmap[y]))
		for x, top := range bitmap[y] {
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				line[x] = '█'
			case top:
				line[x] = '▀'
			case bot:
				line[x] = '▄'
			default:
				line[x] = ' '
			}
		}
		lines = append(lines, string(line))
	}
	return lines
}
