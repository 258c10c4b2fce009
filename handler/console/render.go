package console

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/pterm/pterm"

	"mvmarket-view-onchain/model"
)

const descriptionWidth = 40

// RenderListings は一覧をターミナル向けの表にする
func RenderListings(view model.MarketView) (string, error) {
	var b strings.Builder
	if view.State == model.StateError {
		b.WriteString(pterm.Error.Sprintln("Failed to load listings:", view.Error))
	}

	if len(view.Listings) == 0 {
		// 空表示は読み込み済みで0件のときだけ。失敗時は空のマーケットとみなさない
		switch view.State {
		case model.StateNotLoaded:
			b.WriteString("Loading…\n")
		case model.StateLoaded:
			b.WriteString(model.EmptyMarketMessage + "\n")
		}
		return b.String(), nil
	}

	data := pterm.TableData{{"Token", "Name", "Description", "Price", "Seller", "Owner"}}
	for _, l := range view.Listings {
		data = append(data, []string{
			fmt.Sprintf("%d", l.TokenId),
			l.Name,
			truncate(l.Description, descriptionWidth),
			l.Price + " ETH",
			l.Seller,
			l.Owner,
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader(true).WithData(data).Srender()
	if err != nil {
		return "", err
	}
	b.WriteString(table)
	b.WriteString("\n")
	return b.String(), nil
}

// RenderPurchase は購入結果をキーと値の表にする
func RenderPurchase(result *model.PurchaseResult) (string, error) {
	return pterm.DefaultTable.WithData(pterm.TableData{
		{"Token", fmt.Sprintf("%d", result.TokenId)},
		{"Tx", result.TxHash},
		{"Block", fmt.Sprintf("%d", result.BlockNumber)},
		{"Gas used", fmt.Sprintf("%d", result.GasUsed)},
		{"Paid", model.FormatEther(weiOrZero(result.PriceWei)) + " ETH"},
	}).Srender()
}

// RenderVerification はトランザクション検証結果をキーと値の表にする
func RenderVerification(v *model.TxVerification) (string, error) {
	data := pterm.TableData{
		{"Tx", v.TxHash},
		{"Status", v.Status},
		{"Contract call", fmt.Sprintf("%t", v.IsContractCall)},
	}
	if v.BlockNumber > 0 {
		data = append(data, []string{"Block", fmt.Sprintf("%d", v.BlockNumber)})
	}
	if v.ValueWei != "" {
		data = append(data, []string{"Value", model.FormatEther(weiOrZero(v.ValueWei)) + " ETH"})
	}
	return pterm.DefaultTable.WithData(data).Srender()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func weiOrZero(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
