package util

import (
	"net"
)

// GetLocalIP 获得内网IP
func GetLocalIP() string {
	addrs, err := net.InterfaceAddrs()

	if err != nil {
		return ""
	}

	for _, address := range addrs {

		// 检查ip地址判断是否回环地址
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}

		}
	}
	return ""
}

// AdvertiseAddress address clients dial for a listen address; an empty or
// unspecified host is replaced by the local ip, or 127.0.0.1 without one.
func AdvertiseAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if nil != err {
		return listen
	}
	if ip := net.ParseIP(host); host != "" && (nil == ip || !ip.IsUnspecified()) {
		return listen
	}
	host = GetLocalIP()
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
