package hass

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MediaFetcher pulls rendered audio from the hub's media endpoint so the
// session can estimate playback duration from the file itself.
type MediaFetcher struct {
	http  *http.Client
	token string
	base  string
}

func NewMediaFetcher(baseURL, token string) *MediaFetcher {
	return &MediaFetcher{
		http:  &http.Client{Timeout: 15 * time.Second},
		token: token,
		base:  strings.TrimRight(baseURL, "/"),
	}
}

// FetchHead downloads up to maxBytes of the audio resource and returns the
// bytes plus the total content length reported by the server (-1 if unknown).
func (f *MediaFetcher) FetchHead(ctx context.Context, mediaURL string, maxBytes int64) ([]byte, int64, error) {
	url := mediaURL
	if strings.HasPrefix(url, "/") {
		url = f.base + url
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, 0, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, 0, fmt.Errorf("media fetch: %s: %s", resp.Status, string(b))
	}
	head, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, 0, err
	}
	return head, resp.ContentLength, nil
}

// Estimate downloads the head of the audio resource and derives a playback
// duration from its first frame header.
func (f *MediaFetcher) Estimate(ctx context.Context, mediaURL string) (time.Duration, error) {
	head, total, err := f.FetchHead(ctx, mediaURL, 64<<10)
	if err != nil {
		return 0, err
	}
	if total < 0 {
		total = int64(len(head))
	}
	return EstimateMP3Duration(head, total)
}

// mpeg1Layer3Bitrates maps the MPEG1 Layer III bitrate index to kbit/s.
// Index 0 (free) and 15 (bad) are unusable.
var mpeg1Layer3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}

var mpeg2Layer3Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}

// EstimateMP3Duration derives a playback duration from the first audio frame
// header and the total byte size. CBR assumption; good enough for short
// synthesized clips where a second of error is covered by platform buffers.
func EstimateMP3Duration(head []byte, totalBytes int64) (time.Duration, error) {
	if totalBytes <= 0 {
		return 0, fmt.Errorf("unknown content length")
	}
	audio := totalBytes
	off := 0
	// Skip an ID3v2 tag if present; its size field is syncsafe.
	if len(head) >= 10 && head[0] == 'I' && head[1] == 'D' && head[2] == '3' {
		tagSize := int(head[6]&0x7f)<<21 | int(head[7]&0x7f)<<14 | int(head[8]&0x7f)<<7 | int(head[9]&0x7f)
		off = 10 + tagSize
		audio -= int64(off)
	}
	for ; off+4 <= len(head); off++ {
		if head[off] != 0xff || head[off+1]&0xe0 != 0xe0 {
			continue
		}
		versionBits := (head[off+1] >> 3) & 0x03
		layerBits := (head[off+1] >> 1) & 0x03
		if layerBits != 0x01 { // Layer III
			continue
		}
		idx := int(head[off+2] >> 4)
		var kbps int
		switch versionBits {
		case 0x03: // MPEG1
			kbps = mpeg1Layer3Bitrates[idx]
		case 0x02, 0x00: // MPEG2 / 2.5
			kbps = mpeg2Layer3Bitrates[idx]
		default:
			continue
		}
		if kbps == 0 {
			continue
		}
		secs := float64(audio*8) / float64(kbps*1000)
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("no mpeg frame header in first %d bytes", len(head))
}
