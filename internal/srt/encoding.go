package srt

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

type Encoding string

const (
	UTF8    Encoding = "utf-8"
	UTF16LE Encoding = "utf-16le"
	UTF16BE Encoding = "utf-16be"
	GBK     Encoding = "gbk"
	GB18030 Encoding = "gb18030"
)

const sniffLimit = 2000

var (
	bomUTF8    = []byte{0xef, 0xbb, 0xbf}
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// DetectEncoding guesses the charset of an SRT upload. Files exported by
// Chinese subtitle tools are frequently GBK, so the first few kilobytes are
// scored as UTF-8 multibyte runs against GBK lead/trail pairs.
func DetectEncoding(b []byte) Encoding {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return UTF8
	case bytes.HasPrefix(b, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(b, bomUTF16BE):
		return UTF16BE
	}

	n := min(len(b), sniffLimit)
	utf8Valid := true
	utf8Score, gbkScore := 0, 0

	for i := 0; i < n; i++ {
		c := b[i]
		if c <= 0x7f {
			continue
		}

		if size := utf8SequenceLength(c); size > 0 {
			if continuationBytes(b, i+1, size-1) {
				utf8Score += size
				i += size - 1
				continue
			}
			utf8Valid = false
			continue
		}

		utf8Valid = false
		if c >= 0x81 && c <= 0xfe && i+1 < len(b) {
			next := b[i+1]
			if (next >= 0x40 && next <= 0x7e) || (next >= 0x80 && next <= 0xfe) {
				gbkScore += 2
				i++
			}
		}
	}

	if utf8Valid && utf8Score > 0 {
		return UTF8
	}
	if gbkScore > utf8Score {
		return GBK
	}
	return UTF8
}

func utf8SequenceLength(c byte) int {
	switch {
	case c&0xe0 == 0xc0:
		return 2
	case c&0xf0 == 0xe0:
		return 3
	case c&0xf8 == 0xf0:
		return 4
	}
	return 0
}

func continuationBytes(b []byte, from, count int) bool {
	if from+count > len(b) {
		return false
	}
	for _, c := range b[from : from+count] {
		if c&0xc0 != 0x80 {
			return false
		}
	}
	return true
}

// Decode converts raw SRT bytes to a string, returning the encoding that was
// actually used. GBK output without any CJK ideographs is treated as a
// misdetection and retried as GB18030, then as lossy UTF-8.
func Decode(b []byte) (string, Encoding, error) {
	detected := DetectEncoding(b)

	switch detected {
	case UTF16LE, UTF16BE:
		endian := unicode.LittleEndian
		if detected == UTF16BE {
			endian = unicode.BigEndian
		}
		out, err := decodeWith(unicode.UTF16(endian, unicode.ExpectBOM), b)
		if err != nil {
			return "", detected, err
		}
		return out, detected, nil
	case GBK:
		if out, err := decodeWith(simplifiedchinese.GBK, b); err == nil && containsIdeograph(out) {
			return out, GBK, nil
		}
		if out, err := decodeWith(simplifiedchinese.GB18030, b); err == nil {
			return out, GB18030, nil
		}
		return lossyUTF8(b), UTF8, nil
	}

	if utf8.Valid(b) {
		return string(b), UTF8, nil
	}
	return lossyUTF8(b), UTF8, nil
}

func decodeWith(enc encoding.Encoding, b []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func lossyUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "\ufffd")
}
