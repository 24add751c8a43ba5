package binance

// ExchangeClient defines the interface for exchange API operations
type ExchangeClient interface {
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	Get24hrTickers() ([]Ticker24hr, error)
	GetCurrentPrice(symbol string) (float64, error)
	GetUSDTBalance() (float64, error)
	PlaceMarketBuy(symbol string, quoteAmount float64) (*OrderResponse, error)
	PlaceMarketSell(symbol string, quantity float64) (*OrderResponse, error)
}

// Ensure both Client and MockClient implement ExchangeClient
var _ ExchangeClient = (*Client)(nil)
var _ ExchangeClient = (*MockClient)(nil)
