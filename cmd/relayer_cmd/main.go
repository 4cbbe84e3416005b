package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/peerswap-io/relayer-go/cmd"
	"github.com/peerswap-io/relayer-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "RELAYER_CONFIG"
)

func main() {
	logconfig.ConfigProductionLogger()

	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Relayer server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Relayer server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	if !initializeViper(_config_file) {
		return
	}

	// Make the configuration
	rsc := PrepareRelayerServerConfig()
	if rsc == nil {
		fmt.Printf("Error loading relayer server configuration\n")
		return
	}

	fmt.Println("Starting relayer server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartRelayerServerAndWait(rsc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareRelayerServerConfig reads configuration variables and returns a
// RelayerServerConfig.
func PrepareRelayerServerConfig() *cmd.RelayerServerConfig {
	return &cmd.RelayerServerConfig{
		// first chain
		ChainAKey:         viper.GetString("CHAIN_A_KEY"),
		ChainARpcUrl:      viper.GetString("CHAIN_A_RPC_URL"),
		ChainAId:          viper.GetString("CHAIN_A_ID"),
		ChainAFactoryAddr: viper.GetString("CHAIN_A_FACTORY_ADDR"),
		// second chain
		ChainBKey:         viper.GetString("CHAIN_B_KEY"),
		ChainBRpcUrl:      viper.GetString("CHAIN_B_RPC_URL"),
		ChainBId:          viper.GetString("CHAIN_B_ID"),
		ChainBFactoryAddr: viper.GetString("CHAIN_B_FACTORY_ADDR"),
		// relayer account
		RelayerPrivKey: viper.GetString("RELAYER_PRIV_KEY"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}
