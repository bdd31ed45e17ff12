package xmlout

import "time"

// TimestampLen is the length of a formatted timestamp, YYYY-MM-DDTHH:MM:SSZ,
// for years 0-9999
const TimestampLen = 20

// AppendTime appends t in UTC as YYYY-MM-DDTHH:MM:SSZ. The zero time
// appends nothing. Digits are written directly: time.Format was the
// hottest path in profiles of full planet runs. Years outside 0-9999 do not
// fit four digits and go through time.AppendFormat instead.
func AppendTime(dst []byte, t time.Time) []byte {
	if t.IsZero() {
		return dst
	}
	t = t.UTC()
	year, month, day := t.Date()
	if year < 0 || year > 9999 {
		return t.AppendFormat(dst, "2006-01-02T15:04:05Z")
	}
	hour, min, sec := t.Clock()

	var b [TimestampLen]byte
	b[0] = '0' + byte((year/1000)%10)
	b[1] = '0' + byte((year/100)%10)
	b[2] = '0' + byte((year/10)%10)
	b[3] = '0' + byte(year%10)
	b[4] = '-'
	b[5] = '0' + byte(int(month)/10)
	b[6] = '0' + byte(int(month)%10)
	b[7] = '-'
	b[8] = '0' + byte(day/10)
	b[9] = '0' + byte(day%10)
	b[10] = 'T'
	b[11] = '0' + byte(hour/10)
	b[12] = '0' + byte(hour%10)
	b[13] = ':'
	b[14] = '0' + byte(min/10)
	b[15] = '0' + byte(min%10)
	b[16] = ':'
	b[17] = '0' + byte(sec/10)
	b[18] = '0' + byte(sec%10)
	b[19] = 'Z'
	return append(dst, b[:]...)
}

// FormatTime returns the timestamp string, or "" for the zero time
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	var b [TimestampLen]byte
	return string(AppendTime(b[:0], t))
}
