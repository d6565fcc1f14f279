package util

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
)

// requestTimeout bounds every CLI request.
const requestTimeout = 5 * time.Second

func GetAddress(flags *pflag.FlagSet) (string, error) {
	host := flags.Lookup("host").Value.String()
	port, err := flags.GetInt("port")
	if err != nil {
		return "", fmt.Errorf("invalid port: %v", err)
	}

	return net.JoinHostPort(host, fmt.Sprintf("%d", port)), nil
}

func RequestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, requestTimeout)
}
