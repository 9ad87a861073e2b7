package bot

import (
	"strconv"
	"strings"
)

// Callback data codes. Telegram caps callback data at 64 bytes, so codes are
// short and numeric arguments are appended with ':' separators.
const (
	cbMenu       = "m"
	cbMenuForced = "mfd"

	cbMoon          = "mc"
	cbMoonToday     = "mc_t"
	cbMoonEnterDate = "mc_d"

	cbApod = "ap"

	cbFacts         = "if"
	cbFactToday     = "if_t"
	cbFactSubscribe = "if_s"
	cbFactUnsub     = "if_u"

	cbArticles       = "ar"
	cbArticleSection = "ar_s"
	cbArticleSubsect = "ar_ss"

	cbQuiz       = "qz"
	cbQuizTopic  = "qz_t"
	cbQuizLevel  = "qz_l"
	cbQuizStart  = "qz_s"
	cbQuizAnswer = "qz_a"
	cbQuizNext   = "qz_n"
)

// cbData joins a code with numeric arguments: cbData("qz_l", 2, 1) → "qz_l:2:1".
func cbData(code string, args ...uint) string {
	var b strings.Builder
	b.WriteString(code)
	for _, a := range args {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(a), 10))
	}
	return b.String()
}

// parseCB splits callback data into its code and numeric arguments. Malformed
// arguments yield (code, nil, false) so the dispatcher can ignore the press.
func parseCB(data string) (code string, args []uint, ok bool) {
	parts := strings.Split(data, ":")
	code = parts[0]
	for _, p := range parts[1:] {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return code, nil, false
		}
		args = append(args, uint(n))
	}
	return code, args, true
}
