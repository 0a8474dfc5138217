// Command progressionctl администрирует хранилище прогрессии: миграции,
// синхронизация каталога, ручные начисления, аудит журнала и архив.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
