package state

var (
	// table that stores the life cycle of a swap, one row per hashlock.
	// hex columns are stored lower-case without 0x prefix; uint256 fields
	// as decimal strings.
	swapTable = `CREATE TABLE IF NOT EXISTS swap (
		hashlock CHAR(64) PRIMARY KEY NOT NULL,
		chainKey VARCHAR(32) NOT NULL,
		factoryAddress CHAR(40) NOT NULL,
		orderHash CHAR(64) NOT NULL,
		asker CHAR(40) NOT NULL,
		fullfiller CHAR(40) NOT NULL,
		srcToken CHAR(40) NOT NULL,
		dstToken CHAR(40) NOT NULL,
		srcChainId VARCHAR(78) NOT NULL,
		dstChainId VARCHAR(78) NOT NULL,
		askerAmount VARCHAR(78) NOT NULL,
		fullfillerAmount VARCHAR(78) NOT NULL,
		platformFee VARCHAR(78) NOT NULL,
		feeCollector CHAR(40) NOT NULL,
		timelocks VARCHAR(78) NOT NULL,
		parameters BLOB,
		srcEscrow CHAR(40) NOT NULL,
		dstEscrow CHAR(40) NOT NULL,
		status VARCHAR(10) NOT NULL,
		srcDeployed INTEGER NOT NULL DEFAULT 0,
		dstDeployed INTEGER NOT NULL DEFAULT 0,
		srcTxHash CHAR(64),
		dstTxHash CHAR(64),
		createdAt BIGINT NOT NULL,
		updatedAt BIGINT NOT NULL,
		CONSTRAINT chk_status CHECK (status IN ('pending', 'fulfilled', 'completed'))
	);`

	// per-chain poller cursor (last processed block), survives restarts.
	cursorTable = `CREATE TABLE IF NOT EXISTS chain_cursor (
		chainKey VARCHAR(32) PRIMARY KEY NOT NULL,
		blockNumber VARCHAR(78) NOT NULL
	);`

	swapColumnList = ` hashlock, chainKey, factoryAddress, orderHash, asker, fullfiller,
		srcToken, dstToken, srcChainId, dstChainId, askerAmount, fullfillerAmount,
		platformFee, feeCollector, timelocks, parameters, srcEscrow, dstEscrow,
		status, srcDeployed, dstDeployed, srcTxHash, dstTxHash, createdAt, updatedAt `
)
