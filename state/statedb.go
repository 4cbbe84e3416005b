package state

import (
	"database/sql"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/peerswap-io/relayer-go/common"
	"github.com/peerswap-io/relayer-go/contracts/escrow"
	"github.com/peerswap-io/relayer-go/database"
)

// StateDB persists swap records and poller cursors in sqlite.
// It is a dumb row store; merge semantics live in Registry.
type StateDB struct {
	stmtCache *database.StmtCache
}

func NewStateDB(db *sql.DB) (*StateDB, error) {
	// 1. Create the tables.
	if _, err := db.Exec(swapTable + cursorTable); err != nil {
		return nil, err
	}

	// 2. A stmt cache + db.
	return &StateDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (st *StateDB) Close() {
	st.stmtCache.Clear()
}

func (st *StateDB) PutSwap(rec *SwapRecord) error {
	query := `INSERT OR REPLACE INTO swap (` + swapColumnList + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	// A NULL column keeps a missing leg distinct from an empty string, so a
	// partial completion reloads with the absent hash still empty.
	var srcTxHash, dstTxHash sql.NullString
	if rec.CompletionTxHashes != nil {
		srcTxHash = nullableHash(rec.CompletionTxHashes.SrcTxHash)
		dstTxHash = nullableHash(rec.CompletionTxHashes.DstTxHash)
	}

	data := &rec.ExecutionData
	_, err = stmt.Exec(
		rec.HashlockKey(),
		rec.ChainKey,
		addrHex(rec.FactoryAddress),
		common.ByteSliceToPureHexStr(data.OrderHash[:]),
		addrHex(data.Asker),
		addrHex(data.Fullfiller),
		addrHex(data.SrcToken),
		addrHex(data.DstToken),
		decString(data.SrcChainId),
		decString(data.DstChainId),
		decString(data.AskerAmount),
		decString(data.FullfillerAmount),
		decString(data.PlatformFee),
		addrHex(data.FeeCollector),
		decString(data.Timelocks),
		data.Parameters,
		addrHex(rec.SrcEscrow),
		addrHex(rec.DstEscrow),
		string(rec.Status),
		boolToInt(rec.SrcDeployed),
		boolToInt(rec.DstDeployed),
		srcTxHash,
		dstTxHash,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func (st *StateDB) GetSwap(hashlock string) (*SwapRecord, bool, error) {
	query := `SELECT` + swapColumnList + `FROM swap WHERE hashlock = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	rec, err := scanSwap(stmt.QueryRow(NormalizeHashlock(hashlock)))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ListSwaps returns all records, optionally filtered by status. No row
// ordering is guaranteed.
func (st *StateDB) ListSwaps(status SwapStatus) ([]*SwapRecord, error) {
	query := `SELECT` + swapColumnList + `FROM swap`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}

	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*SwapRecord
	for rows.Next() {
		rec, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetChainCursor returns the persisted last processed block for chainKey.
func (st *StateDB) GetChainCursor(chainKey string) (*big.Int, bool, error) {
	query := `SELECT blockNumber FROM chain_cursor WHERE chainKey = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var stored string
	if err := stmt.QueryRow(chainKey).Scan(&stored); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	num, ok := new(big.Int).SetString(stored, 10)
	if !ok {
		return nil, false, nil
	}
	return num, true, nil
}

func (st *StateDB) SetChainCursor(chainKey string, blockNumber *big.Int) error {
	query := `INSERT OR REPLACE INTO chain_cursor (chainKey, blockNumber) VALUES (?, ?)`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(chainKey, blockNumber.String())
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSwap(row rowScanner) (*SwapRecord, error) {
	var (
		hashlock, chainKey, factoryAddress, orderHash  string
		asker, fullfiller, srcToken, dstToken          string
		srcChainId, dstChainId                         string
		askerAmount, fullfillerAmount, platformFee     string
		feeCollector, timelocks, srcEscrow, dstEscrow  string
		status                                         string
		parameters                                     []byte
		srcDeployed, dstDeployed                       int
		srcTxHash, dstTxHash                           sql.NullString
		createdAt, updatedAt                           int64
	)

	if err := row.Scan(
		&hashlock, &chainKey, &factoryAddress, &orderHash, &asker, &fullfiller,
		&srcToken, &dstToken, &srcChainId, &dstChainId, &askerAmount, &fullfillerAmount,
		&platformFee, &feeCollector, &timelocks, &parameters, &srcEscrow, &dstEscrow,
		&status, &srcDeployed, &dstDeployed, &srcTxHash, &dstTxHash, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	rec := &SwapRecord{
		ChainKey:       chainKey,
		FactoryAddress: ethcommon.HexToAddress(factoryAddress),
		ExecutionData: escrow.ExecutionData{
			OrderHash:        common.HexStrToBytes32(orderHash),
			Hashlock:         common.HexStrToBytes32(hashlock),
			Asker:            ethcommon.HexToAddress(asker),
			Fullfiller:       ethcommon.HexToAddress(fullfiller),
			SrcToken:         ethcommon.HexToAddress(srcToken),
			DstToken:         ethcommon.HexToAddress(dstToken),
			SrcChainId:       decBig(srcChainId),
			DstChainId:       decBig(dstChainId),
			AskerAmount:      decBig(askerAmount),
			FullfillerAmount: decBig(fullfillerAmount),
			PlatformFee:      decBig(platformFee),
			FeeCollector:     ethcommon.HexToAddress(feeCollector),
			Timelocks:        decBig(timelocks),
			Parameters:       parameters,
		},
		SrcEscrow:   ethcommon.HexToAddress(srcEscrow),
		DstEscrow:   ethcommon.HexToAddress(dstEscrow),
		Status:      SwapStatus(status),
		SrcDeployed: srcDeployed != 0,
		DstDeployed: dstDeployed != 0,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}

	if srcTxHash.Valid || dstTxHash.Valid {
		rec.CompletionTxHashes = &CompletionTxHashes{
			SrcTxHash: hashOrEmpty(srcTxHash),
			DstTxHash: hashOrEmpty(dstTxHash),
		}
	}

	return rec, nil
}

func addrHex(addr ethcommon.Address) string {
	return common.ByteSliceToPureHexStr(addr.Bytes())
}

func nullableHash(hash string) sql.NullString {
	trimmed := common.Trim0xPrefix(hash)
	return sql.NullString{String: trimmed, Valid: trimmed != ""}
}

func hashOrEmpty(col sql.NullString) string {
	if !col.Valid || col.String == "" {
		return ""
	}
	return common.Prepend0xPrefix(col.String)
}

func decString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
