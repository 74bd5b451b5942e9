package fill

import "strings"

// SplitPhoneJP splits a Japanese phone number into its customary three
// parts. Mobile numbers (070/080/090) split 3-4-4, Tokyo and Osaka (03/06)
// split 2-4-4 and other landlines approximate 3-4-4. Anything else is
// returned as a single digit string. Digits beyond the usual length stay in
// the last part, so joining the parts always gives back every digit.
func SplitPhoneJP(s string) []string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if d == "" {
		return nil
	}
	if len(d) >= 11 && d[0] == '0' && (d[1] == '7' || d[1] == '8' || d[1] == '9') && d[2] == '0' {
		return []string{d[:3], d[3:7], d[7:]}
	}
	if len(d) >= 10 && d[0] == '0' {
		head := 3
		if strings.HasPrefix(d, "03") || strings.HasPrefix(d, "06") {
			head = 2
		}
		return []string{d[:head], d[head : head+4], d[head+4:]}
	}
	return []string{d}
}
