// Reader is a testing facility to read the output of a http reporter.

package reporter

import (
	"io"
	"net/http"
)

type HttpReader struct {
	serverIP   string // target ip
	serverPort string // target port
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return &HttpReader{
		serverIP:   serverIP,
		serverPort: serverPort,
	}
}

func (hr *HttpReader) get(route string) (string, error) {
	url := "http://" + hr.serverIP + ":" + hr.serverPort + route

	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (hr *HttpReader) GetHealth() (string, error) {
	return hr.get(ROUTE_HEALTH)
}

func (hr *HttpReader) GetSwapStatus(hashlock string) (string, error) {
	return hr.get("/swap-status/" + hashlock)
}

func (hr *HttpReader) GetCheckRelayer() (string, error) {
	return hr.get(ROUTE_CHECK_RELAYER)
}
