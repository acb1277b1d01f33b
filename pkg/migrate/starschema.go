// pkg/migrate/starschema.go
package migrate

// StarSchema casts the loaded tables to their final types and links orders_table to the dimensions
func StarSchema() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "cast_orders_table",
			Statements: []string{
				`ALTER TABLE orders_table
					ALTER COLUMN date_uuid TYPE UUID USING date_uuid::uuid,
					ALTER COLUMN user_uuid TYPE UUID USING user_uuid::uuid,
					ALTER COLUMN card_number TYPE VARCHAR(19) USING card_number::text,
					ALTER COLUMN store_code TYPE VARCHAR(12),
					ALTER COLUMN product_code TYPE VARCHAR(11),
					ALTER COLUMN product_quantity TYPE SMALLINT USING product_quantity::smallint`,
			},
		},
		{
			Version: 2,
			Name:    "cast_dim_users",
			Statements: []string{
				`ALTER TABLE dim_users
					ALTER COLUMN first_name TYPE VARCHAR(255),
					ALTER COLUMN last_name TYPE VARCHAR(255),
					ALTER COLUMN date_of_birth TYPE DATE USING date_of_birth::date,
					ALTER COLUMN country_code TYPE VARCHAR(3),
					ALTER COLUMN user_uuid TYPE UUID USING user_uuid::uuid,
					ALTER COLUMN join_date TYPE DATE USING join_date::date`,
			},
		},
		{
			Version: 3,
			Name:    "cast_dim_store_details",
			Statements: []string{
				`ALTER TABLE dim_store_details
					ALTER COLUMN locality TYPE VARCHAR(255),
					ALTER COLUMN store_code TYPE VARCHAR(12),
					ALTER COLUMN staff_numbers TYPE SMALLINT USING staff_numbers::smallint,
					ALTER COLUMN opening_date TYPE DATE USING opening_date::date,
					ALTER COLUMN store_type TYPE VARCHAR(255),
					ALTER COLUMN country_code TYPE VARCHAR(2),
					ALTER COLUMN continent TYPE VARCHAR(255)`,
			},
		},
		{
			Version: 4,
			Name:    "dim_products_weight_class",
			Statements: []string{
				`ALTER TABLE dim_products ADD COLUMN IF NOT EXISTS weight_class VARCHAR(14)`,
				`UPDATE dim_products SET weight_class = CASE
					WHEN weight < 2 THEN 'Light'
					WHEN weight < 40 THEN 'Mid_Sized'
					WHEN weight < 140 THEN 'Heavy'
					ELSE 'Truck_Required'
				END`,
			},
		},
		{
			Version: 5,
			Name:    "cast_dim_products",
			Statements: []string{
				`UPDATE dim_products SET product_price = REPLACE(product_price::text, '£', '')`,
				`ALTER TABLE dim_products RENAME COLUMN removed TO still_available`,
				`ALTER TABLE dim_products
					ALTER COLUMN product_price TYPE DOUBLE PRECISION USING product_price::double precision,
					ALTER COLUMN weight TYPE DOUBLE PRECISION,
					ALTER COLUMN "EAN" TYPE VARCHAR(17),
					ALTER COLUMN product_code TYPE VARCHAR(11),
					ALTER COLUMN date_added TYPE DATE USING date_added::date,
					ALTER COLUMN uuid TYPE UUID USING uuid::uuid,
					ALTER COLUMN still_available TYPE BOOLEAN USING (still_available::text = 'Still_avaliable')`,
			},
		},
		{
			Version: 6,
			Name:    "cast_dim_date_times",
			Statements: []string{
				`ALTER TABLE dim_date_times
					ALTER COLUMN month TYPE VARCHAR(2) USING month::text,
					ALTER COLUMN year TYPE VARCHAR(4) USING year::text,
					ALTER COLUMN day TYPE VARCHAR(2) USING day::text,
					ALTER COLUMN time_period TYPE VARCHAR(10),
					ALTER COLUMN date_uuid TYPE UUID USING date_uuid::uuid`,
			},
		},
		{
			Version: 7,
			Name:    "cast_dim_card_details",
			Statements: []string{
				`ALTER TABLE dim_card_details
					ALTER COLUMN card_number TYPE VARCHAR(19) USING card_number::text,
					ALTER COLUMN expiry_date TYPE VARCHAR(5),
					ALTER COLUMN date_payment_confirmed TYPE DATE USING date_payment_confirmed::date`,
			},
		},
		{
			Version: 8,
			Name:    "dimension_primary_keys",
			Statements: []string{
				`ALTER TABLE dim_users ADD PRIMARY KEY (user_uuid)`,
				`ALTER TABLE dim_store_details ADD PRIMARY KEY (store_code)`,
				`ALTER TABLE dim_products ADD PRIMARY KEY (product_code)`,
				`ALTER TABLE dim_date_times ADD PRIMARY KEY (date_uuid)`,
				`ALTER TABLE dim_card_details ADD PRIMARY KEY (card_number)`,
			},
		},
		{
			Version: 9,
			Name:    "orders_foreign_keys",
			Statements: []string{
				`ALTER TABLE orders_table ADD CONSTRAINT fk_orders_user FOREIGN KEY (user_uuid) REFERENCES dim_users (user_uuid)`,
				`ALTER TABLE orders_table ADD CONSTRAINT fk_orders_store FOREIGN KEY (store_code) REFERENCES dim_store_details (store_code)`,
				`ALTER TABLE orders_table ADD CONSTRAINT fk_orders_product FOREIGN KEY (product_code) REFERENCES dim_products (product_code)`,
				`ALTER TABLE orders_table ADD CONSTRAINT fk_orders_date FOREIGN KEY (date_uuid) REFERENCES dim_date_times (date_uuid)`,
				`ALTER TABLE orders_table ADD CONSTRAINT fk_orders_card FOREIGN KEY (card_number) REFERENCES dim_card_details (card_number)`,
			},
		},
	}
}
